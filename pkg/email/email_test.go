package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jane.doe@example.edu", "Jane Doe"},
		{"JANE_DOE+transfer@example.edu", "Jane Doe"},
		{"mary-ann.o.brien@example.com", "Mary Ann O Brien"},
		{"student@example.edu", "Student"},
		{"émile@example.fr", "Émile"},
		{"+tag@example.edu", ""},
		{"@example.edu", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.in))
		})
	}
}

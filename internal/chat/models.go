package chat

import (
	"strings"

	dErrors "transferai/pkg/domain-errors"
	strutil "transferai/pkg/platform/strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	maxHistory = 40
	maxImages  = 12
)

// Message is one prior turn of the conversation as the client keeps it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is a message handed to the model, optionally with PNG page images.
type Turn struct {
	Role   string
	Text   string
	Images [][]byte
}

// Request is the body of POST /api/chat.
type Request struct {
	NewMessage     string    `json:"new_message"`
	History        []Message `json:"history"`
	ImageFilenames []string  `json:"image_filenames"`
}

// Validate implements httputil.Validatable.
func (r *Request) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.NewMessage = strings.TrimSpace(r.NewMessage)
	if r.NewMessage == "" {
		return dErrors.New(dErrors.CodeValidation, "new_message is required")
	}
	r.ImageFilenames = strutil.DedupeAndTrim(r.ImageFilenames)
	if len(r.ImageFilenames) > maxImages {
		return dErrors.New(dErrors.CodeValidation, "too many image_filenames")
	}
	if len(r.History) > maxHistory {
		r.History = r.History[len(r.History)-maxHistory:]
	}
	return nil
}

// Response is the reply to POST /api/chat.
type Response struct {
	Reply string `json:"reply"`
}

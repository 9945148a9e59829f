// Package email derives presentable names from email addresses.
package email

import (
	"strings"
	"unicode"
)

// DisplayName builds a name from the local part of an address, so
// "jane.doe+uc@example.edu" becomes "Jane Doe". Tags after '+' are dropped.
// An address with no usable local part yields "".
func DisplayName(address string) string {
	local := strings.TrimSpace(address)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

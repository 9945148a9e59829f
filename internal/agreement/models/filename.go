package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	ContentTypePDF = "application/pdf"
	ContentTypePNG = "image/png"
)

var sanitizer = strings.NewReplacer(" ", "_", "/", "_", `\`, "_")

// Sanitize makes a display name safe to embed in a filename.
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}

// Names holds the resolved display names for an agreement key. Empty fields
// are replaced by fallbacks derived from the raw ids.
type Names struct {
	Sending   string
	Receiving string
	Major     string
	Year      string
}

// WithFallbacks fills every unresolved name with a deterministic stand-in.
func (n Names) WithFallbacks(k Key) Names {
	if n.Sending == "" {
		n.Sending = "sending_" + strconv.Itoa(k.SendingID)
	}
	if n.Receiving == "" {
		n.Receiving = "receiving_" + strconv.Itoa(k.ReceivingID)
	}
	if n.Major == "" {
		n.Major = "major_" + k.Major.LastSegment()
	}
	if n.Year == "" {
		n.Year = "year_" + strconv.Itoa(k.YearID)
	}
	return n
}

// CanonicalFilename renders "{sending}_to_{receiving}_{major}_{year}.pdf".
// When withDigest is set, a short digest of the raw key is inserted before the
// extension so distinct keys never collide after sanitization.
func CanonicalFilename(n Names, k Key, withDigest bool) string {
	n = n.WithFallbacks(k)
	base := Sanitize(n.Sending) + "_to_" + Sanitize(n.Receiving) + "_" + Sanitize(n.Major) + "_" + Sanitize(n.Year)
	if withDigest {
		base += "_" + KeyDigest(k.String())
	}
	return base + ".pdf"
}

// IGETCFilename renders "{sending}_IGETC_{year}.pdf".
func IGETCFilename(sending, year string, yearID, sendingID int) string {
	if sending == "" {
		sending = "sending_" + strconv.Itoa(sendingID)
	}
	if year == "" {
		year = "year_" + strconv.Itoa(yearID)
	}
	return Sanitize(sending) + "_IGETC_" + Sanitize(year) + ".pdf"
}

// PageImageFilename names the image of page (0-based) of pdfFilename.
func PageImageFilename(pdfFilename string, page int) string {
	return fmt.Sprintf("%s_page_%d.png", pdfFilename, page)
}

// KeyDigest returns the first 8 hex characters of sha256(raw).
func KeyDigest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:8]
}

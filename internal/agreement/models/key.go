package models

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "transferai/pkg/domain-errors"
)

// Category distinguishes major agreements from department agreements. The
// upstream listing endpoint and the rendered page both need it.
type Category int

const (
	CategoryMajor Category = iota
	CategoryDepartment
)

func (c Category) String() string {
	if c == CategoryDepartment {
		return "department"
	}
	return "major"
}

// Code returns the upstream category code.
func (c Category) Code() string {
	if c == CategoryDepartment {
		return "dept"
	}
	return "major"
}

// MajorKey is a parsed major or department key. Upstream keys look like
// "75/61/to/79/Major/7f0c..." or "75/61/to/79/SendingDepartment/MATH".
type MajorKey struct {
	Raw         string
	YearID      int
	SendingID   int
	ReceivingID int
	Category    Category
	// SendingView is set for department keys that are grouped by the sending
	// institution's departments.
	SendingView bool
	Identifier  string
}

// ParseMajorKey parses a raw upstream key. The category segment is matched
// case-sensitively the way the upstream emits it.
func ParseMajorKey(raw string) (MajorKey, error) {
	segments := strings.Split(raw, "/")
	if len(segments) < 6 || segments[2] != "to" {
		return MajorKey{}, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("major key %q must look like year/sending/to/receiving/category/id", raw))
	}
	ids := make([]int, 0, 3)
	for _, seg := range []string{segments[0], segments[1], segments[3]} {
		n, err := strconv.Atoi(seg)
		if err != nil || n <= 0 {
			return MajorKey{}, dErrors.New(dErrors.CodeInvalidInput,
				fmt.Sprintf("major key %q has a non-numeric id segment %q", raw, seg))
		}
		ids = append(ids, n)
	}

	key := MajorKey{
		Raw:         raw,
		YearID:      ids[0],
		SendingID:   ids[1],
		ReceivingID: ids[2],
		Identifier:  strings.Join(segments[5:], "/"),
	}
	category := segments[4]
	if strings.Contains(category, "Department") {
		key.Category = CategoryDepartment
		key.SendingView = strings.Contains(category, "SendingDepartment")
	}
	return key, nil
}

// WithSending returns a copy of the key pointing at another sending
// institution. The raw form is rewritten so upstream lookups see the new id.
func (k MajorKey) WithSending(sendingID int) MajorKey {
	segments := strings.Split(k.Raw, "/")
	if len(segments) > 1 {
		segments[1] = strconv.Itoa(sendingID)
	}
	k.Raw = strings.Join(segments, "/")
	k.SendingID = sendingID
	return k
}

// LastSegment returns the final path segment of the raw key.
func (k MajorKey) LastSegment() string {
	if i := strings.LastIndex(k.Raw, "/"); i >= 0 {
		return k.Raw[i+1:]
	}
	return k.Raw
}

// Key identifies one articulation agreement.
type Key struct {
	YearID      int
	SendingID   int
	ReceivingID int
	Major       MajorKey
}

// NewKey builds a Key from raw ids and a raw major key. The sending segment
// embedded in the major key is replaced by sendingID.
func NewKey(yearID, sendingID, receivingID int, rawMajorKey string) (Key, error) {
	if yearID <= 0 || sendingID <= 0 || receivingID <= 0 {
		return Key{}, dErrors.New(dErrors.CodeInvalidInput, "year, sending and receiving ids must be positive")
	}
	major, err := ParseMajorKey(rawMajorKey)
	if err != nil {
		return Key{}, err
	}
	if major.SendingID != sendingID {
		major = major.WithSending(sendingID)
	}
	return Key{YearID: yearID, SendingID: sendingID, ReceivingID: receivingID, Major: major}, nil
}

// String renders the raw identifier tuple, used for logs and digests.
func (k Key) String() string {
	return fmt.Sprintf("%d|%d|%d|%s", k.YearID, k.SendingID, k.ReceivingID, k.Major.Raw)
}

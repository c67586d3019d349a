package naming

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	reSubjectLabel = regexp.MustCompile(`^sub-[A-Za-z0-9]+$`)
	reSessionLabel = regexp.MustCompile(`^ses-[A-Za-z0-9]+$`)
)

// IsSubjectLabel reports whether s is a well-formed subject directory name
// ("sub-" followed by an alphanumeric label).
func IsSubjectLabel(s string) bool {
	return reSubjectLabel.MatchString(s)
}

// IsSessionLabel reports whether s is a well-formed session directory name.
func IsSessionLabel(s string) bool {
	return reSessionLabel.MatchString(s)
}

// Subject identifies one unit of batch work: a subject scoped to a session.
// Session is empty for datasets without a session level.
type Subject struct {
	ID      string
	Session string
}

// Key returns a stable identifier used for log file names and summaries,
// e.g. "sub-002S0413_ses-M00".
func (s Subject) Key() string {
	if s.Session == "" {
		return s.ID
	}
	return s.ID + "_" + s.Session
}

// String implements fmt.Stringer.
func (s Subject) String() string {
	if s.Session == "" {
		return s.ID
	}
	return s.ID + "/" + s.Session
}

// Dir returns the subject's directory subtree under base.
func (s Subject) Dir(base string) string {
	if s.Session == "" {
		return filepath.Join(base, s.ID)
	}
	return filepath.Join(base, s.ID, s.Session)
}

// Prefix returns the file-name prefix shared by every file of the subject,
// e.g. "sub-002S0413_ses-M00".
func (s Subject) Prefix() string {
	return s.Key()
}

// Label returns the subject label without its "sub-" entity key.
func (s Subject) Label() string {
	return strings.TrimPrefix(s.ID, "sub-")
}

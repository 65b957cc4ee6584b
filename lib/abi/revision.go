package abi

import (
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Revision identifies one released wire format.
type Revision uint16

const (
	// RevisionUnknown is the zero value and never valid on the wire.
	RevisionUnknown Revision = 0

	// Revision1 is the base format: fixed-width identifier counters, histories
	// encoded inline every time they appear.
	Revision1 Revision = 1
	// Revision2 switches counters and lengths to uvarints, introduces history
	// back-references and the skip-transactions request.
	Revision2 Revision = 2
	// Revision3 introduces read priorities (advisory), write preconditions
	// (structural) and data versions on read responses (advisory).
	Revision3 Revision = 3

	// RevisionTestFuture is newer than every production revision. Tests only.
	RevisionTestFuture Revision = 65535
)

// production holds every revision this build can produce and consume, oldest first.
var production = []Revision{Revision1, Revision2, Revision3}

var (
	ErrUnknownRevision  = errors.New("abi: unknown revision")
	ErrNoCommonRevision = errors.New("abi: no common revision")
)

// String returns the string representation of a Revision.
func (r Revision) String() string {
	switch r {
	case RevisionUnknown:
		return "unknown"
	case RevisionTestFuture:
		return "test-future"
	default:
		return "r" + strconv.FormatUint(uint64(r), 10)
	}
}

// Supported returns the production revisions in ascending order.
// The returned slice is a copy and may be modified by the caller.
func Supported() []Revision {
	return slices.Clone(production)
}

// Oldest returns the oldest production revision. Connection handshakes are
// encoded with it so that every peer can read them.
func Oldest() Revision {
	return production[0]
}

// Current returns the newest production revision.
func Current() Revision {
	return production[len(production)-1]
}

// IsProduction reports whether r is a released revision of this build.
func IsProduction(r Revision) bool {
	return slices.Contains(production, r)
}

// IsKnown reports whether r is understood by this build. The test sentinel is
// known (so it can be cloned to) but is not a production revision.
func IsKnown(r Revision) bool {
	return r == RevisionTestFuture || IsProduction(r)
}

// Compare returns -1, 0 or +1 like cmp.Compare.
func (r Revision) Compare(other Revision) int {
	switch {
	case r < other:
		return -1
	case r > other:
		return 1
	default:
		return 0
	}
}

// ParseRevision parses "3", "r3", "test-future" into a Revision.
func ParseRevision(s string) (Revision, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == RevisionTestFuture.String() {
		return RevisionTestFuture, nil
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "r"), 10, 16)
	if err != nil {
		return RevisionUnknown, errors.Wrapf(ErrUnknownRevision, "parse %q", s)
	}
	r := Revision(n)
	if !IsProduction(r) {
		return RevisionUnknown, errors.Wrapf(ErrUnknownRevision, "%s", r)
	}
	return r, nil
}

// ParseRevisions parses a comma-separated revision list. The result is sorted
// and free of duplicates. An empty string yields Supported().
func ParseRevisions(s string) ([]Revision, error) {
	if strings.TrimSpace(s) == "" {
		return Supported(), nil
	}
	var out []Revision
	for _, part := range strings.Split(s, ",") {
		r, err := ParseRevision(part)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// FormatRevisions renders a revision list as "r1,r2,r3".
func FormatRevisions(revs []Revision) string {
	parts := make([]string, len(revs))
	for i, r := range revs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// Range returns the lowest and highest revision in revs.
func Range(revs []Revision) (lo, hi Revision, err error) {
	if len(revs) == 0 {
		return RevisionUnknown, RevisionUnknown, errors.New("abi: empty revision set")
	}
	return slices.Min(revs), slices.Max(revs), nil
}

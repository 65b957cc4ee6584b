package datatree

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// Op is the kind of a Modification.
type Op uint8

const (
	OpWrite Op = iota + 1
	OpMerge
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpMerge:
		return "merge"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Modification is one mutation of a transaction.
//
// ExpectedVersion, when set, is a precondition on the current version of the
// node at Path: 0 means the node must not exist, any other value must equal the
// node's committed version. A node created or changed earlier in the same
// batch matches neither.
type Modification struct {
	Op              Op
	Path            string
	Data            []byte
	ExpectedVersion *uint64
}

// Write creates a write modification.
func Write(path string, data []byte) Modification {
	return Modification{Op: OpWrite, Path: path, Data: data}
}

// Merge creates a merge modification.
func Merge(path string, data []byte) Modification {
	return Modification{Op: OpMerge, Path: path, Data: data}
}

// Delete creates a delete modification.
func Delete(path string) Modification {
	return Modification{Op: OpDelete, Path: path}
}

// WithExpectedVersion returns a copy of m carrying the given precondition.
func (m Modification) WithExpectedVersion(version uint64) Modification {
	m.ExpectedVersion = &version
	return m
}

// Validate checks the operation and the path of a modification.
func (m Modification) Validate() error {
	switch m.Op {
	case OpWrite, OpMerge:
	case OpDelete:
		if m.Data != nil {
			return errors.Newf("datatree: delete of %s carries data", m.Path)
		}
	default:
		return errors.Newf("datatree: invalid operation %d", m.Op)
	}
	return ValidatePath(m.Path)
}

// --------------------------------------------------------------------------
// Paths
// --------------------------------------------------------------------------

var ErrInvalidPath = errors.New("datatree: invalid path")

// ValidatePath accepts "/" and paths of the form "/a/b" without empty segments
// or a trailing slash.
func ValidatePath(path string) error {
	if path == "/" {
		return nil
	}
	if !strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return errors.Wrapf(ErrInvalidPath, "%q", path)
	}
	return nil
}

// childPrefix returns the prefix shared by all descendants of path.
func childPrefix(path string) string {
	if path == "/" {
		return "/"
	}
	return path + "/"
}

// IsDescendant reports whether path lies strictly below ancestor.
func IsDescendant(path, ancestor string) bool {
	return path != ancestor && strings.HasPrefix(path, childPrefix(ancestor))
}

// --------------------------------------------------------------------------
// Merge semantics
// --------------------------------------------------------------------------

// mergeData merges update into current. Two JSON objects are merged shallowly,
// anything else is replaced by update.
func mergeData(current, update []byte) []byte {
	if current == nil {
		return cloneBytes(update)
	}
	var base, patch map[string]json.RawMessage
	if json.Unmarshal(current, &base) != nil || json.Unmarshal(update, &patch) != nil || base == nil || patch == nil {
		return cloneBytes(update)
	}
	for k, v := range patch {
		base[k] = v
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return cloneBytes(update)
	}
	return merged
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

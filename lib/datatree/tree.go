package datatree

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

const (
	btreeDegree   = 32
	snapshotMagic = "DTXTREE\x00"
	snapshotVer   = 1
)

// Node is one entry of the tree.
type Node struct {
	Path    string
	Data    []byte
	Version uint64
}

// Less implements btree.Item, ordering nodes by path.
func (n Node) Less(than btree.Item) bool {
	return n.Path < than.(Node).Path
}

// Uncommitted is the actual version of a node that an earlier modification of
// the same batch created or changed. No precondition matches it.
const Uncommitted uint64 = math.MaxUint64

// ConflictError reports a failed ExpectedVersion precondition.
type ConflictError struct {
	Path     string
	Expected uint64
	Actual   uint64
}

func (e *ConflictError) Error() string {
	if e.Actual == Uncommitted {
		return fmt.Sprintf("datatree: conflict on %s: expected version %d, found an uncommitted node", e.Path, e.Expected)
	}
	return fmt.Sprintf("datatree: conflict on %s: expected version %d, found %d", e.Path, e.Expected, e.Actual)
}

// ErrConflict marks every *ConflictError.
var ErrConflict = errors.New("datatree: precondition failed")

// Tree is the committed data view of one shard.
type Tree struct {
	mu    sync.RWMutex
	nodes *btree.BTree
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{nodes: btree.New(btreeDegree)}
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Get returns the node at path.
func (t *Tree) Get(path string) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.get(path)
}

// Has reports whether a node exists at path.
func (t *Tree) Has(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes.Has(Node{Path: path})
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes.Len()
}

// SizeBytes returns the summed size of all paths and data.
func (t *Tree) SizeBytes() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	size := 0
	t.nodes.Ascend(func(i btree.Item) bool {
		n := i.(Node)
		size += len(n.Path) + len(n.Data)
		return true
	})
	return size
}

// Children returns the descendants of path in path order.
func (t *Tree) Children(path string) []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Node
	t.ascendDescendants(path, func(n Node) { out = append(out, n) })
	return out
}

func (t *Tree) get(path string) (Node, bool) {
	item := t.nodes.Get(Node{Path: path})
	if item == nil {
		return Node{}, false
	}
	return item.(Node), true
}

// ascendDescendants calls fn for every node strictly below path.
func (t *Tree) ascendDescendants(path string, fn func(Node)) {
	prefix := childPrefix(path)
	t.nodes.AscendGreaterOrEqual(Node{Path: prefix}, func(i btree.Item) bool {
		n := i.(Node)
		if !strings.HasPrefix(n.Path, prefix) {
			return false
		}
		if n.Path != path {
			fn(n)
		}
		return true
	})
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// Check validates all modifications and their preconditions against the
// current state without applying anything.
func (t *Tree) Check(mods []Modification) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.check(mods)
}

// Apply atomically applies a batch of modifications, stamping every touched
// node with version.
func (t *Tree) Apply(mods []Modification, version uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check(mods); err != nil {
		return err
	}
	for _, m := range mods {
		switch m.Op {
		case OpWrite:
			t.deleteSubtree(m.Path, false)
			t.nodes.ReplaceOrInsert(Node{Path: m.Path, Data: cloneBytes(m.Data), Version: version})
		case OpMerge:
			old, _ := t.get(m.Path)
			t.nodes.ReplaceOrInsert(Node{Path: m.Path, Data: mergeData(old.Data, m.Data), Version: version})
		case OpDelete:
			t.deleteSubtree(m.Path, true)
		}
	}
	return nil
}

// check evaluates preconditions in batch order: a precondition observes the
// effect of earlier modifications of the same batch on its path.
func (t *Tree) check(mods []Modification) error {
	for i, m := range mods {
		if err := m.Validate(); err != nil {
			return err
		}
		if m.ExpectedVersion == nil {
			continue
		}
		committed, ok := t.get(m.Path)
		node, exists := Resolve(m.Path, committed, ok, mods[:i])
		actual := uint64(0)
		switch {
		case exists && touches(mods[:i], m.Path):
			actual = Uncommitted
		case exists:
			actual = node.Version
		}
		if actual != *m.ExpectedVersion {
			return errors.Mark(&ConflictError{Path: m.Path, Expected: *m.ExpectedVersion, Actual: actual}, ErrConflict)
		}
	}
	return nil
}

// touches reports whether one of mods targets path itself.
func touches(mods []Modification, path string) bool {
	for _, m := range mods {
		if m.Path == path {
			return true
		}
	}
	return false
}

func (t *Tree) deleteSubtree(path string, includeSelf bool) {
	var victims []Node
	t.ascendDescendants(path, func(n Node) { victims = append(victims, n) })
	for _, n := range victims {
		t.nodes.Delete(n)
	}
	if includeSelf {
		t.nodes.Delete(Node{Path: path})
	}
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// Save writes all nodes to w:
//
//	magic(8) | version u32 | count u64 | count * (pathLen u32 | path | version u64 | dataLen u32 | data)
func (t *Tree) Save(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	bw := bufio.NewWriter(w)
	hdr := make([]byte, 0, 20)
	hdr = append(hdr, snapshotMagic...)
	hdr = binary.BigEndian.AppendUint32(hdr, snapshotVer)
	hdr = binary.BigEndian.AppendUint64(hdr, uint64(t.nodes.Len()))
	if _, err := bw.Write(hdr); err != nil {
		return err
	}

	var werr error
	buf := make([]byte, 0, 64)
	t.nodes.Ascend(func(i btree.Item) bool {
		n := i.(Node)
		buf = buf[:0]
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(n.Path)))
		buf = append(buf, n.Path...)
		buf = binary.BigEndian.AppendUint64(buf, n.Version)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(n.Data)))
		buf = append(buf, n.Data...)
		_, werr = bw.Write(buf)
		return werr == nil
	})
	if werr != nil {
		return werr
	}
	return bw.Flush()
}

// Load replaces the content of the tree with a snapshot written by Save.
// It reads exactly the bytes Save produced, so further data may follow in r.
func (t *Tree) Load(r io.Reader) error {
	hdr := make([]byte, 20)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return errors.Wrap(err, "datatree: read snapshot header")
	}
	if string(hdr[:8]) != snapshotMagic {
		return errors.New("datatree: invalid snapshot magic")
	}
	if v := binary.BigEndian.Uint32(hdr[8:12]); v != snapshotVer {
		return errors.Newf("datatree: unsupported snapshot version %d", v)
	}
	count := binary.BigEndian.Uint64(hdr[12:20])

	nodes := btree.New(btreeDegree)
	var fixed [12]byte
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, fixed[:4]); err != nil {
			return errors.Wrapf(err, "datatree: read node %d", i)
		}
		path := make([]byte, binary.BigEndian.Uint32(fixed[:4]))
		if _, err := io.ReadFull(r, path); err != nil {
			return errors.Wrapf(err, "datatree: read node %d", i)
		}
		if _, err := io.ReadFull(r, fixed[:12]); err != nil {
			return errors.Wrapf(err, "datatree: read node %d", i)
		}
		version := binary.BigEndian.Uint64(fixed[:8])
		data := make([]byte, binary.BigEndian.Uint32(fixed[8:12]))
		if _, err := io.ReadFull(r, data); err != nil {
			return errors.Wrapf(err, "datatree: read node %d", i)
		}
		nodes.ReplaceOrInsert(Node{Path: string(path), Data: data, Version: version})
	}

	t.mu.Lock()
	t.nodes = nodes
	t.mu.Unlock()
	return nil
}

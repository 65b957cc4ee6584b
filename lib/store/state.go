package store

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
)

// ShardState is the replicated state of one shard: the committed data tree
// plus the table of committed, not yet purged transactions. Both store
// implementations apply their commands to a ShardState.
type ShardState struct {
	mu        sync.Mutex // serializes writers; the tree has its own lock for readers
	tree      *datatree.Tree
	committed map[ids.TransactionID]uint64
	lastIndex uint64
}

// NewShardState creates an empty shard state.
func NewShardState() *ShardState {
	return &ShardState{
		tree:      datatree.New(),
		committed: make(map[ids.TransactionID]uint64),
	}
}

// Commit applies the modifications of tx at index. A transaction that is
// already committed keeps its original index.
func (s *ShardState) Commit(tx ids.TransactionID, mods []datatree.Modification, index uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.committed[tx]; ok {
		return prev, nil
	}
	if err := s.tree.Apply(mods, index); err != nil {
		return 0, toStoreError(err)
	}
	s.committed[tx] = index
	if index > s.lastIndex {
		s.lastIndex = index
	}
	return index, nil
}

// Check validates modifications against the committed tree.
func (s *ShardState) Check(mods []datatree.Modification) error {
	if err := s.tree.Check(mods); err != nil {
		return toStoreError(err)
	}
	return nil
}

// Purge forgets a committed transaction.
func (s *ShardState) Purge(tx ids.TransactionID) {
	s.mu.Lock()
	delete(s.committed, tx)
	s.mu.Unlock()
}

// Read returns the committed node at path.
func (s *ShardState) Read(path string) (datatree.Node, bool, error) {
	if err := datatree.ValidatePath(path); err != nil {
		return datatree.Node{}, false, NewError(RetCInvalidOperation, err.Error())
	}
	node, ok := s.tree.Get(path)
	return node, ok, nil
}

// Info returns metadata about the state.
func (s *ShardState) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		Nodes:     s.tree.Len(),
		SizeBytes: s.tree.SizeBytes(),
		Committed: len(s.committed),
		LastIndex: s.lastIndex,
	}
}

func toStoreError(err error) *Error {
	if errors.Is(err, datatree.ErrConflict) {
		return NewError(RetCConflict, err.Error())
	}
	return NewError(RetCInvalidOperation, err.Error())
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// Save writes a zstd compressed snapshot of the state to w:
//
//	tree | lastIndex u64 | count u32 | count * (transaction id | index u64)
func (s *ShardState) Save(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := s.tree.Save(enc); err != nil {
		_ = enc.Close()
		return err
	}

	buf := binary.BigEndian.AppendUint64(nil, s.lastIndex)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s.committed)))
	for tx, index := range s.committed {
		buf = ids.AppendTransactionID(buf, tx)
		buf = binary.BigEndian.AppendUint64(buf, index)
	}
	if _, err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// Load replaces the state with a snapshot written by Save.
func (s *ShardState) Load(r io.Reader) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer dec.Close()

	tree := datatree.New()
	if err := tree.Load(dec); err != nil {
		return err
	}
	rest, err := io.ReadAll(dec)
	if err != nil {
		return errors.Wrap(err, "store: read snapshot")
	}
	if len(rest) < 12 {
		return errors.New("store: truncated snapshot")
	}
	lastIndex := binary.BigEndian.Uint64(rest[:8])
	count := binary.BigEndian.Uint32(rest[8:12])
	rest = rest[12:]

	committed := make(map[ids.TransactionID]uint64, count)
	for i := uint32(0); i < count; i++ {
		var tx ids.TransactionID
		tx, rest, err = ids.ReadTransactionID(rest)
		if err != nil {
			return errors.Wrapf(err, "store: snapshot transaction %d", i)
		}
		if len(rest) < 8 {
			return errors.New("store: truncated snapshot")
		}
		committed[tx] = binary.BigEndian.Uint64(rest[:8])
		rest = rest[8:]
	}

	s.mu.Lock()
	s.tree = tree
	s.committed = committed
	s.lastIndex = lastIndex
	s.mu.Unlock()
	return nil
}

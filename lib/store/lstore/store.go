package lstore

import (
	"sync/atomic"

	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/lib/store"
)

type storeImpl struct {
	state *store.ShardState
	index atomic.Uint64
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
func NewLocalStore() store.IStore {
	return &storeImpl{
		state: store.NewShardState(),
	}
}

// incAndGetIndex increments the index and returns the new value.
// It plays the role of the raft log index of the distributed store.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Commit(tx ids.TransactionID, mods []datatree.Modification) (uint64, error) {
	index, err := s.state.Commit(tx, mods, s.incAndGetIndex())
	if err != nil {
		return 0, err
	}
	return index, nil
}

func (s *storeImpl) Check(mods []datatree.Modification) error {
	return s.state.Check(mods)
}

func (s *storeImpl) Purge(tx ids.TransactionID) error {
	s.state.Purge(tx)
	return nil
}

func (s *storeImpl) Read(path string) (datatree.Node, bool, error) {
	return s.state.Read(path)
}

func (s *storeImpl) GetInfo() (store.Info, error) {
	return s.state.Info(), nil
}

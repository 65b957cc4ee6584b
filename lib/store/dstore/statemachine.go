package dstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dTX/lib/store"
	"github.com/ValentinKolb/dTX/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// TxStateMachine is a state machine implementation for Dragonboat RAFT
type TxStateMachine struct {
	replicaID uint64
	shardID   uint64
	state     *store.ShardState
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
func CreateStateMachineFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &TxStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			state:     store.NewShardState(),
		}
	}
}

// Lookup handles read-only queries against the shard state.
func (fsm *TxStateMachine) Lookup(itf interface{}) (interface{}, error) {

	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTRead:
		node, found, err := fsm.state.Read(q.Path)
		if err != nil {
			return nil, err
		}
		return internal.ReadResult{Found: found, Node: node}, nil
	case internal.QueryTCheck:
		if err := fsm.state.Check(q.Mods); err != nil {
			return nil, err
		}
		return true, nil
	case internal.QueryTGetInfo:
		return fsm.state.Info(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// failure encodes a store error into an entry result. A non-empty Data marks
// the result as failed.
func failure(err error) sm.Result {
	if serr, ok := err.(*store.Error); ok {
		return sm.Result{Value: uint64(serr.Code), Data: []byte(serr.Msg)}
	}
	return sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(err.Error())}
}

// Update applies committed raft entries to the shard state.
// The result value of a successful commit is its commit index.
func (fsm *TxStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = failure(store.NewError(store.RetCInvalidOperation, "empty command ignored"))
			continue
		}

		entry := internal.Entry{}
		if err := entry.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = failure(store.NewError(store.RetCInternalError, fmt.Sprintf("failed to deserialize entry: %v", err)))
			continue
		}

		switch entry.Type {
		case internal.EntryTCommit:
			index, err := fsm.state.Commit(entry.Tx, entry.Mods, e.Index)
			if err != nil {
				entries[idx].Result = failure(err)
				continue
			}
			entries[idx].Result = sm.Result{Value: index}
		case internal.EntryTPurge:
			fsm.state.Purge(entry.Tx)
			entries[idx].Result = sm.Result{Value: e.Index}
		default:
			entries[idx].Result = failure(store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown entry type: %s", entry.Type)))
		}
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot is not used. Snapshots are fuzzy.
func (fsm *TxStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot writes a compressed snapshot of the shard state.
func (fsm *TxStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	return fsm.state.Save(writer)
}

// RecoverFromSnapshot restores the shard state from a snapshot.
func (fsm *TxStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return fsm.state.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *TxStateMachine) Close() error {
	return nil
}

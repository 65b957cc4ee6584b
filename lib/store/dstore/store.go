package dstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/lib/store"
	"github.com/ValentinKolb/dTX/lib/store/dstore/internal"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the concrete implementation of the distributed store.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus
// to replicate commits across multiple nodes.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write proposes an Entry via SyncPropose and returns the result value
// (the commit index for EntryTCommit).
func (s *storeImpl) write(e internal.Entry) (uint64, error) {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, e.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return 0, store.NewError(store.RetCInternalError, err.Error())
		}
		if len(res.Data) > 0 {
			// the state machine encodes failures as return code + message
			return 0, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return res.Value, nil
	}
	return 0, store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// SyncRead is used by default. If linearizability is not required, stale can be
// set to true to use the faster StaleRead function.
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var serr *store.Error
			if errors.As(err, &serr) {
				return zero, serr
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Commit(tx ids.TransactionID, mods []datatree.Modification) (uint64, error) {
	return s.write(internal.Entry{
		Type: internal.EntryTCommit,
		Tx:   tx,
		Mods: mods,
	})
}

func (s *storeImpl) Check(mods []datatree.Modification) error {
	_, err := read[bool](s, internal.Query{
		Type: internal.QueryTCheck,
		Mods: mods,
	}, false)
	return err
}

func (s *storeImpl) Purge(tx ids.TransactionID) error {
	_, err := s.write(internal.Entry{
		Type: internal.EntryTPurge,
		Tx:   tx,
	})
	return err
}

func (s *storeImpl) Read(path string) (datatree.Node, bool, error) {
	res, err := read[internal.ReadResult](s, internal.Query{
		Type: internal.QueryTRead,
		Path: path,
	}, false)
	if err != nil {
		return datatree.Node{}, false, err
	}
	return res.Node, res.Found, nil
}

func (s *storeImpl) GetInfo() (store.Info, error) {
	return read[store.Info](
		s,
		internal.Query{
			Type: internal.QueryTGetInfo,
		},
		true, // Note: allow for stale reads
	)
}

package client

import (
	"context"

	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/cockroachdb/errors"
)

// Transaction is one transaction of a history. Its requests are sequenced on
// the transaction itself, methods may be called from several goroutines but
// are applied by the backend in the order they were issued.
type Transaction struct {
	f  *Frontend
	id ids.TransactionID
}

// ReadResult is the answer to a read. Version is only reported for committed
// nodes by backends speaking Revision3 or later.
type ReadResult struct {
	Data    []byte
	Found   bool
	Version *uint64
}

// ID returns the identifier of the transaction.
func (t *Transaction) ID() ids.TransactionID {
	return t.id
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Read returns the node at path. With snapshotOnly the committed state is
// read, otherwise the transaction's own modifications are visible.
func (t *Transaction) Read(ctx context.Context, path string, snapshotOnly bool) (ReadResult, error) {
	return t.read(ctx, path, snapshotOnly, nil)
}

// ReadWithPriority is Read with an advisory priority. Backends older than
// Revision3 ignore it.
func (t *Transaction) ReadWithPriority(ctx context.Context, path string, snapshotOnly bool, priority uint8) (ReadResult, error) {
	return t.read(ctx, path, snapshotOnly, &priority)
}

func (t *Transaction) read(ctx context.Context, path string, snapshotOnly bool, priority *uint8) (ReadResult, error) {
	resp, err := invoke[common.ReadTransactionSuccess](ctx, t.f.seq, t.id.Key(), func(seq uint64) common.Message {
		return common.ReadTransactionRequest{Header: header(t.f.seq, t.id, seq), Path: path, SnapshotOnly: snapshotOnly, Priority: priority}
	})
	if err != nil {
		return ReadResult{}, errors.Wrapf(err, "read %s in %s", path, t.id)
	}
	return ReadResult{Data: resp.Data, Found: resp.Data != nil, Version: resp.DataVersion}, nil
}

// Exists reports whether a node exists at path.
func (t *Transaction) Exists(ctx context.Context, path string, snapshotOnly bool) (bool, error) {
	resp, err := invoke[common.ExistsTransactionSuccess](ctx, t.f.seq, t.id.Key(), func(seq uint64) common.Message {
		return common.ExistsTransactionRequest{Header: header(t.f.seq, t.id, seq), Path: path, SnapshotOnly: snapshotOnly}
	})
	if err != nil {
		return false, errors.Wrapf(err, "exists %s in %s", path, t.id)
	}
	return resp.Exists, nil
}

// --------------------------------------------------------------------------
// Modifications
// --------------------------------------------------------------------------

// Write replaces the node at path and its subtree.
func (t *Transaction) Write(ctx context.Context, path string, data []byte) error {
	return t.Modify(ctx, datatree.Write(path, data))
}

// Merge merges data into the node at path.
func (t *Transaction) Merge(ctx context.Context, path string, data []byte) error {
	return t.Modify(ctx, datatree.Merge(path, data))
}

// Delete removes the node at path and its subtree.
func (t *Transaction) Delete(ctx context.Context, path string) error {
	return t.Modify(ctx, datatree.Delete(path))
}

// Modify appends modifications to the open transaction.
func (t *Transaction) Modify(ctx context.Context, mods ...datatree.Modification) error {
	_, err := t.modify(ctx, common.ProtocolNone, mods)
	return err
}

// Ready appends modifications and seals the transaction. It must be committed
// with Commit or CommitCoordinated afterwards.
func (t *Transaction) Ready(ctx context.Context, mods ...datatree.Modification) error {
	_, err := t.modify(ctx, common.ProtocolReady, mods)
	return err
}

// Submit appends modifications and commits them in one request.
func (t *Transaction) Submit(ctx context.Context, mods ...datatree.Modification) (uint64, error) {
	resp, err := t.modify(ctx, common.ProtocolSimple, mods)
	if err != nil {
		return 0, err
	}
	return commitIndex(resp)
}

func (t *Transaction) modify(ctx context.Context, protocol common.PersistenceProtocol, mods []datatree.Modification) (common.Message, error) {
	resp, err := t.f.seq.Invoke(ctx, t.id.Key(), func(seq uint64) common.Message {
		return common.ModifyTransactionRequest{Header: header(t.f.seq, t.id, seq), Modifications: mods, Protocol: protocol}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "modify %s", t.id)
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Commit
// --------------------------------------------------------------------------

// Commit commits the transaction in one step and returns the log index it was
// committed at.
func (t *Transaction) Commit(ctx context.Context) (uint64, error) {
	resp, err := invoke[common.TransactionCommitSuccess](ctx, t.f.seq, t.id.Key(), func(seq uint64) common.Message {
		return common.TransactionCommitRequest{Header: header(t.f.seq, t.id, seq)}
	})
	if err != nil {
		return 0, errors.Wrapf(err, "commit %s", t.id)
	}
	return resp.Index, nil
}

// CommitCoordinated runs the three phase commit: can-commit, pre-commit and
// do-commit.
func (t *Transaction) CommitCoordinated(ctx context.Context) (uint64, error) {
	if _, err := invoke[common.TransactionCanCommitSuccess](ctx, t.f.seq, t.id.Key(), func(seq uint64) common.Message {
		return common.TransactionCommitRequest{Header: header(t.f.seq, t.id, seq), Coordinated: true}
	}); err != nil {
		return 0, errors.Wrapf(err, "can-commit %s", t.id)
	}
	if _, err := invoke[common.TransactionPreCommitSuccess](ctx, t.f.seq, t.id.Key(), func(seq uint64) common.Message {
		return common.TransactionPreCommitRequest{Header: header(t.f.seq, t.id, seq)}
	}); err != nil {
		return 0, errors.Wrapf(err, "pre-commit %s", t.id)
	}
	resp, err := invoke[common.TransactionCommitSuccess](ctx, t.f.seq, t.id.Key(), func(seq uint64) common.Message {
		return common.TransactionDoCommitRequest{Header: header(t.f.seq, t.id, seq)}
	})
	if err != nil {
		return 0, errors.Wrapf(err, "do-commit %s", t.id)
	}
	return resp.Index, nil
}

// Abort discards the transaction.
func (t *Transaction) Abort(ctx context.Context) error {
	_, err := invoke[common.TransactionAbortSuccess](ctx, t.f.seq, t.id.Key(), func(seq uint64) common.Message {
		return common.TransactionAbortRequest{Header: header(t.f.seq, t.id, seq)}
	})
	return errors.Wrapf(err, "abort %s", t.id)
}

// Purge releases the backend state of a committed or aborted transaction.
func (t *Transaction) Purge(ctx context.Context) error {
	_, err := invoke[common.TransactionPurgeResponse](ctx, t.f.seq, t.id.Key(), func(seq uint64) common.Message {
		return common.TransactionPurgeRequest{Header: header(t.f.seq, t.id, seq)}
	})
	if err != nil {
		return errors.Wrapf(err, "purge %s", t.id)
	}
	t.f.seq.Forget(t.id.Key())
	return nil
}

func commitIndex(resp common.Message) (uint64, error) {
	switch r := resp.(type) {
	case common.TransactionCommitSuccess:
		return r.Index, nil
	default:
		return 0, errors.Newf("unexpected response %s", common.Describe(resp))
	}
}

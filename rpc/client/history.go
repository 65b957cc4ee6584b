package client

import (
	"context"

	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/cockroachdb/errors"
)

// History is a local history: a chain of transactions of one frontend whose
// transaction numbers are allocated in order.
type History struct {
	f   *Frontend
	id  ids.HistoryID
	txs *ids.TxSequencer
}

// ID returns the identifier of the history.
func (h *History) ID() ids.HistoryID {
	return h.id
}

// Begin allocates the next transaction of the history. Nothing is sent, the
// backend opens the transaction with its first request.
func (h *History) Begin() *Transaction {
	return &Transaction{f: h.f, id: h.txs.Next()}
}

// Skip allocates n transaction numbers and tells the backend that they will
// never be used.
func (h *History) Skip(ctx context.Context, n int) ([]ids.TransactionID, error) {
	skipped := make([]ids.TransactionID, n)
	for i := range skipped {
		skipped[i] = h.txs.Next()
	}
	_, err := invoke[common.SkipTransactionsResponse](ctx, h.f.seq, h.id.Key(), func(seq uint64) common.Message {
		return common.SkipTransactionsRequest{Header: header(h.f.seq, h.id, seq), Transactions: skipped}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "skip transactions of %s", h.id)
	}
	for _, id := range skipped {
		h.f.seq.Forget(id.Key())
	}
	return skipped, nil
}

// Destroy closes the history. Unfinished transactions are aborted by the
// backend and no new ones can be started.
func (h *History) Destroy(ctx context.Context) error {
	_, err := invoke[common.LocalHistorySuccess](ctx, h.f.seq, h.id.Key(), func(seq uint64) common.Message {
		return common.DestroyLocalHistoryRequest{Header: header(h.f.seq, h.id, seq)}
	})
	return errors.Wrapf(err, "destroy history %s", h.id)
}

// Purge releases the backend state of a destroyed history.
func (h *History) Purge(ctx context.Context) error {
	_, err := invoke[common.LocalHistorySuccess](ctx, h.f.seq, h.id.Key(), func(seq uint64) common.Message {
		return common.PurgeLocalHistoryRequest{Header: header(h.f.seq, h.id, seq)}
	})
	if err != nil {
		return errors.Wrapf(err, "purge history %s", h.id)
	}
	h.f.seq.Forget(h.id.Key())
	return nil
}

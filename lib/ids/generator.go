package ids

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Generator allocates local histories for one client. It is the frontend's
// critical section for history counters; callers may share it across goroutines.
type Generator struct {
	mu     sync.Mutex
	client ClientID
	next   uint64
}

// NewGenerator creates a generator whose first history is 1 (0 is the
// standalone history).
func NewGenerator(client ClientID) *Generator {
	return &Generator{client: client, next: 1}
}

// Client returns the client the generator allocates for.
func (g *Generator) Client() ClientID {
	return g.client
}

// NextHistory allocates a fresh history identifier.
func (g *Generator) NextHistory() HistoryID {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := HistoryID{Client: g.client, History: g.next}
	g.next++
	return h
}

// TxSequencer allocates transaction-local sequence numbers inside one history.
type TxSequencer struct {
	mu      sync.Mutex
	history HistoryID
	next    uint64
}

// NewTxSequencer creates a sequencer starting at transaction 0.
func NewTxSequencer(history HistoryID) *TxSequencer {
	return &TxSequencer{history: history}
}

// History returns the history the sequencer allocates for.
func (s *TxSequencer) History() HistoryID {
	return s.history
}

// Next allocates the next transaction identifier.
func (s *TxSequencer) Next() TransactionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := TransactionID{History: s.history, Tx: s.next}
	s.next++
	return id
}

// Claim reserves an explicit transaction number. It must not be lower than
// any number already handed out.
func (s *TxSequencer) Claim(tx int64) (TransactionID, error) {
	id, err := NewTransactionID(s.history, tx)
	if err != nil {
		return TransactionID{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id.Tx < s.next {
		return TransactionID{}, errors.Wrapf(ErrNonMonotonic, "claim %d, next is %d", id.Tx, s.next)
	}
	s.next = id.Tx + 1
	return id, nil
}

package ids

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrNegativeCounter = errors.New("ids: negative counter")
	ErrNonMonotonic    = errors.New("ids: non-monotonic counter")
)

// --------------------------------------------------------------------------
// Frontend / Client
// --------------------------------------------------------------------------

// FrontendID names a frontend: the cluster member it runs on and its type
// (e.g. "datastore-client").
type FrontendID struct {
	Member string
	Type   string
}

func (f FrontendID) String() string {
	return f.Member + "-frontend-" + f.Type
}

// Compare orders frontends by member, then type.
func (f FrontendID) Compare(o FrontendID) int {
	if c := strings.Compare(f.Member, o.Member); c != 0 {
		return c
	}
	return strings.Compare(f.Type, o.Type)
}

// ClientID is one generation of a frontend. A restarted frontend must use a
// strictly greater generation.
type ClientID struct {
	Frontend   FrontendID
	Generation uint64
}

func (c ClientID) String() string {
	return fmt.Sprintf("%s-%d", c.Frontend, c.Generation)
}

// Compare orders clients by frontend, then generation.
func (c ClientID) Compare(o ClientID) int {
	if r := c.Frontend.Compare(o.Frontend); r != 0 {
		return r
	}
	return cmp.Compare(c.Generation, o.Generation)
}

// Key returns the sequencing key for client-scoped requests.
func (c ClientID) Key() Key {
	return Key{Scope: ScopeClient, History: HistoryID{Client: c}}
}

// --------------------------------------------------------------------------
// History
// --------------------------------------------------------------------------

// HistoryID identifies a local history. History 0 is reserved for standalone
// transactions that do not belong to an explicit history.
type HistoryID struct {
	Client  ClientID
	History uint64
	Cookie  uint32
}

// NewHistoryID builds a history identifier, rejecting negative counters.
func NewHistoryID(client ClientID, history int64, cookie uint32) (HistoryID, error) {
	if history < 0 {
		return HistoryID{}, errors.Wrapf(ErrNegativeCounter, "history %d", history)
	}
	return HistoryID{Client: client, History: uint64(history), Cookie: cookie}, nil
}

func (h HistoryID) String() string {
	return fmt.Sprintf("%s-history-%d-%d", h.Client, h.History, h.Cookie)
}

// Compare orders histories by client, history counter, then cookie.
func (h HistoryID) Compare(o HistoryID) int {
	if r := h.Client.Compare(o.Client); r != 0 {
		return r
	}
	if r := cmp.Compare(h.History, o.History); r != 0 {
		return r
	}
	return cmp.Compare(h.Cookie, o.Cookie)
}

// Key returns the sequencing key for history-scoped requests.
func (h HistoryID) Key() Key {
	return Key{Scope: ScopeHistory, History: h}
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// TransactionID identifies one transaction inside a history.
type TransactionID struct {
	History HistoryID
	Tx      uint64
}

// NewTransactionID builds a transaction identifier, rejecting negative counters.
func NewTransactionID(history HistoryID, tx int64) (TransactionID, error) {
	if tx < 0 {
		return TransactionID{}, errors.Wrapf(ErrNegativeCounter, "transaction %d", tx)
	}
	return TransactionID{History: history, Tx: uint64(tx)}, nil
}

func (t TransactionID) String() string {
	return fmt.Sprintf("%s-txn-%d", t.History, t.Tx)
}

// Compare orders transactions by history, then by local sequence.
func (t TransactionID) Compare(o TransactionID) int {
	if r := t.History.Compare(o.History); r != 0 {
		return r
	}
	return cmp.Compare(t.Tx, o.Tx)
}

// Key returns the sequencing key for transaction-scoped requests.
func (t TransactionID) Key() Key {
	return Key{Scope: ScopeTransaction, History: t.History, Tx: t.Tx}
}

// --------------------------------------------------------------------------
// Target / Key
// --------------------------------------------------------------------------

// Target is the set of identifiers a message can be addressed to.
type Target interface {
	ClientID | HistoryID | TransactionID
	Key() Key
	String() string
}

// Scope tells which identifier a Key was derived from.
type Scope uint8

const (
	ScopeClient Scope = iota + 1
	ScopeHistory
	ScopeTransaction
)

func (s Scope) String() string {
	switch s {
	case ScopeClient:
		return "client"
	case ScopeHistory:
		return "history"
	case ScopeTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// Key is a hashable, scope-tagged form of any Target. It is what sequencing
// state is keyed by on both sides of the protocol.
type Key struct {
	Scope   Scope
	History HistoryID
	Tx      uint64
}

func (k Key) String() string {
	switch k.Scope {
	case ScopeClient:
		return k.History.Client.String()
	case ScopeHistory:
		return k.History.String()
	case ScopeTransaction:
		return TransactionID{History: k.History, Tx: k.Tx}.String()
	default:
		return "unknown-target"
	}
}

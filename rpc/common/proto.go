package common

import (
	"fmt"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
)

// --------------------------------------------------------------------------
// Envelope
// --------------------------------------------------------------------------

// Address is an opaque reply-to token. It is echoed back unmodified and
// never parsed.
type Address string

// Header is embedded in every message.
type Header[T ids.Target] struct {
	Target   T
	Sequence uint64
	ReplyTo  Address
	Version  abi.Revision
}

// NewHeader creates a header tagged with the current revision.
func NewHeader[T ids.Target](target T, sequence uint64, replyTo Address) Header[T] {
	return Header[T]{Target: target, Sequence: sequence, ReplyTo: replyTo, Version: abi.Current()}
}

// Key returns the sequencing key of the target.
func (h Header[T]) Key() ids.Key { return h.Target.Key() }

// Seq returns the sequence number.
func (h Header[T]) Seq() uint64 { return h.Sequence }

// Reply returns the reply-to address.
func (h Header[T]) Reply() Address { return h.ReplyTo }

// Revision returns the revision the message is tagged with.
func (h Header[T]) Revision() abi.Revision { return h.Version }

// Echo returns the header of a response to a request carrying h.
func (h Header[T]) Echo() Header[T] { return h }

func (h Header[T]) isMessage() {}

// Message is the sum of all protocol messages. The set of implementations is
// closed: every variant lives in this package.
//
// Messages are immutable values. CloneAsVersion returns a new message and
// never modifies the receiver.
type Message interface {
	Kind() Kind
	Key() ids.Key
	Seq() uint64
	Reply() Address
	Revision() abi.Revision
	CloneAsVersion(r abi.Revision) (Message, error)

	withRevision(r abi.Revision) Message
	isMessage()
}

// Describe renders the envelope of a message for logs.
func Describe(m Message) string {
	return fmt.Sprintf("%s{target=%s seq=%d rev=%s}", m.Kind(), m.Key(), m.Seq(), m.Revision())
}

// --------------------------------------------------------------------------
// Payload Types
// --------------------------------------------------------------------------

// PersistenceProtocol tells the backend what to do after applying the
// modifications of a ModifyTransactionRequest.
type PersistenceProtocol uint8

const (
	ProtocolNone       PersistenceProtocol = iota // keep the transaction open
	ProtocolReady                                 // seal the transaction, await a commit request
	ProtocolSimple                                // seal and commit in one step
	ProtocolThreePhase                            // seal and answer can-commit
	ProtocolAbort                                 // discard the transaction
)

func (p PersistenceProtocol) String() string {
	switch p {
	case ProtocolNone:
		return "none"
	case ProtocolReady:
		return "ready"
	case ProtocolSimple:
		return "simple"
	case ProtocolThreePhase:
		return "three-phase"
	case ProtocolAbort:
		return "abort"
	default:
		return fmt.Sprintf("PersistenceProtocol(%d)", uint8(p))
	}
}

// Valid reports whether p is a defined protocol.
func (p PersistenceProtocol) Valid() bool {
	return p <= ProtocolAbort
}

// CauseCode classifies a backend failure.
type CauseCode uint8

const (
	CauseInternal CauseCode = iota + 1
	CauseInvalidRequest
	CauseUnsupportedRevision
	CauseNegotiation
	CauseSequenceViolation
	CauseOutOfOrder
	CauseNotFound
	CauseConflict
	CauseClosed
	CauseRetired
	CauseUntrusted
	CauseInvalidState

	causeEnd
)

var causeNames = [causeEnd]string{
	CauseInternal:            "internal",
	CauseInvalidRequest:      "invalid-request",
	CauseUnsupportedRevision: "unsupported-revision",
	CauseNegotiation:         "negotiation",
	CauseSequenceViolation:   "sequence-violation",
	CauseOutOfOrder:          "out-of-order",
	CauseNotFound:            "not-found",
	CauseConflict:            "conflict",
	CauseClosed:              "closed",
	CauseRetired:             "retired",
	CauseUntrusted:           "untrusted",
	CauseInvalidState:        "invalid-state",
}

// Valid reports whether c is a defined cause code.
func (c CauseCode) Valid() bool {
	return c > 0 && c < causeEnd
}

func (c CauseCode) String() string {
	if !c.Valid() {
		return fmt.Sprintf("CauseCode(%d)", uint8(c))
	}
	return causeNames[c]
}

// Cause describes why a request failed.
type Cause struct {
	Code    CauseCode
	Message string
}

func (c Cause) String() string {
	if c.Message == "" {
		return c.Code.String()
	}
	return c.Code.String() + ": " + c.Message
}

// --------------------------------------------------------------------------
// Client Scoped Messages
// --------------------------------------------------------------------------

// ConnectClientRequest opens a client generation and negotiates the revision.
// MinRevision and MaxRevision describe the supported range; Revisions, when
// present, lists the supported revisions exactly.
type ConnectClientRequest struct {
	Header[ids.ClientID]
	MinRevision abi.Revision
	MaxRevision abi.Revision
	Revisions   []abi.Revision // exact set, Min/Max only when nil
}

// ConnectClientSuccess carries the negotiated revision.
type ConnectClientSuccess struct {
	Header[ids.ClientID]
	Negotiated abi.Revision
	Backend    string
}

// ClientFailure reports a failed client scoped request.
type ClientFailure struct {
	Header[ids.ClientID]
	Cause Cause
}

// --------------------------------------------------------------------------
// History Scoped Messages
// --------------------------------------------------------------------------

// CreateLocalHistoryRequest creates a local history on the backend.
type CreateLocalHistoryRequest struct {
	Header[ids.HistoryID]
}

// DestroyLocalHistoryRequest closes a local history. No new transactions can
// be started in it afterwards.
type DestroyLocalHistoryRequest struct {
	Header[ids.HistoryID]
}

// PurgeLocalHistoryRequest releases all backend state of a destroyed history.
type PurgeLocalHistoryRequest struct {
	Header[ids.HistoryID]
}

// LocalHistorySuccess acknowledges a history request.
type LocalHistorySuccess struct {
	Header[ids.HistoryID]
}

// SkipTransactionsRequest tells the backend that the listed transactions of
// the history will never be used.
type SkipTransactionsRequest struct {
	Header[ids.HistoryID]
	Transactions []ids.TransactionID
}

// SkipTransactionsResponse acknowledges a SkipTransactionsRequest.
type SkipTransactionsResponse struct {
	Header[ids.HistoryID]
}

// HistoryFailure reports a failed history scoped request.
type HistoryFailure struct {
	Header[ids.HistoryID]
	Cause Cause
}

// --------------------------------------------------------------------------
// Transaction Scoped Messages
// --------------------------------------------------------------------------

// ReadTransactionRequest reads the node at Path. With SnapshotOnly the
// backend consults the last committed state only, otherwise the
// transaction's own uncommitted modifications are visible.
type ReadTransactionRequest struct {
	Header[ids.TransactionID]
	Path         string
	SnapshotOnly bool
	Priority     *uint8 // advisory, since Revision3
}

// ReadTransactionSuccess carries the data read. Data is nil when the node
// does not exist.
type ReadTransactionSuccess struct {
	Header[ids.TransactionID]
	Data        []byte
	DataVersion *uint64 // advisory, since Revision3
}

// ExistsTransactionRequest checks whether a node exists at Path.
type ExistsTransactionRequest struct {
	Header[ids.TransactionID]
	Path         string
	SnapshotOnly bool
}

// ExistsTransactionSuccess carries the result of an ExistsTransactionRequest.
type ExistsTransactionSuccess struct {
	Header[ids.TransactionID]
	Exists bool
}

// ModifyTransactionRequest appends modifications to a transaction and
// optionally advances its lifecycle.
type ModifyTransactionRequest struct {
	Header[ids.TransactionID]
	Modifications []datatree.Modification // ExpectedVersion since Revision3
	Protocol      PersistenceProtocol
}

// ModifyTransactionSuccess acknowledges a ModifyTransactionRequest.
type ModifyTransactionSuccess struct {
	Header[ids.TransactionID]
}

// TransactionCommitRequest commits a sealed transaction. A coordinated commit
// only answers can-commit and waits for pre-commit and do-commit.
type TransactionCommitRequest struct {
	Header[ids.TransactionID]
	Coordinated bool
}

// TransactionCanCommitSuccess is the first phase answer of a coordinated commit.
type TransactionCanCommitSuccess struct {
	Header[ids.TransactionID]
}

// TransactionPreCommitRequest is the second phase of a coordinated commit.
type TransactionPreCommitRequest struct {
	Header[ids.TransactionID]
}

// TransactionPreCommitSuccess acknowledges a TransactionPreCommitRequest.
type TransactionPreCommitSuccess struct {
	Header[ids.TransactionID]
}

// TransactionDoCommitRequest is the final phase of a coordinated commit.
type TransactionDoCommitRequest struct {
	Header[ids.TransactionID]
}

// TransactionCommitSuccess reports the log index the transaction was
// committed at.
type TransactionCommitSuccess struct {
	Header[ids.TransactionID]
	Index uint64
}

// TransactionAbortRequest discards an open or sealed transaction.
type TransactionAbortRequest struct {
	Header[ids.TransactionID]
}

// TransactionAbortSuccess acknowledges a TransactionAbortRequest.
type TransactionAbortSuccess struct {
	Header[ids.TransactionID]
}

// TransactionPurgeRequest releases all backend state of a finished transaction.
type TransactionPurgeRequest struct {
	Header[ids.TransactionID]
}

// TransactionPurgeResponse acknowledges a TransactionPurgeRequest.
type TransactionPurgeResponse struct {
	Header[ids.TransactionID]
}

// TransactionFailure reports a failed transaction scoped request.
type TransactionFailure struct {
	Header[ids.TransactionID]
	Cause Cause
}

// --------------------------------------------------------------------------
// Failures
// --------------------------------------------------------------------------

// NewFailure builds the failure response matching the scope of req.
func NewFailure(req Message, cause Cause) Message {
	switch r := req.(type) {
	case ConnectClientRequest:
		return ClientFailure{Header: r.Header, Cause: cause}
	case CreateLocalHistoryRequest:
		return HistoryFailure{Header: r.Header, Cause: cause}
	case DestroyLocalHistoryRequest:
		return HistoryFailure{Header: r.Header, Cause: cause}
	case PurgeLocalHistoryRequest:
		return HistoryFailure{Header: r.Header, Cause: cause}
	case SkipTransactionsRequest:
		return HistoryFailure{Header: r.Header, Cause: cause}
	case ReadTransactionRequest:
		return TransactionFailure{Header: r.Header, Cause: cause}
	case ExistsTransactionRequest:
		return TransactionFailure{Header: r.Header, Cause: cause}
	case ModifyTransactionRequest:
		return TransactionFailure{Header: r.Header, Cause: cause}
	case TransactionCommitRequest:
		return TransactionFailure{Header: r.Header, Cause: cause}
	case TransactionPreCommitRequest:
		return TransactionFailure{Header: r.Header, Cause: cause}
	case TransactionDoCommitRequest:
		return TransactionFailure{Header: r.Header, Cause: cause}
	case TransactionAbortRequest:
		return TransactionFailure{Header: r.Header, Cause: cause}
	case TransactionPurgeRequest:
		return TransactionFailure{Header: r.Header, Cause: cause}
	default:
		return nil
	}
}

// FailureCause returns the cause of a failure response.
func FailureCause(m Message) (Cause, bool) {
	switch f := m.(type) {
	case ClientFailure:
		return f.Cause, true
	case HistoryFailure:
		return f.Cause, true
	case TransactionFailure:
		return f.Cause, true
	default:
		return Cause{}, false
	}
}

package common

import (
	"fmt"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/ids"
)

// --------------------------------------------------------------------------
// Message Kinds
// --------------------------------------------------------------------------

// Kind identifies a message variant on the wire. Values are never reused.
type Kind uint8

const (
	KindConnectClientRequest Kind = iota + 1
	KindConnectClientSuccess
	KindCreateLocalHistoryRequest
	KindDestroyLocalHistoryRequest
	KindPurgeLocalHistoryRequest
	KindLocalHistorySuccess
	KindSkipTransactionsRequest
	KindSkipTransactionsResponse
	KindReadTransactionRequest
	KindReadTransactionSuccess
	KindExistsTransactionRequest
	KindExistsTransactionSuccess
	KindModifyTransactionRequest
	KindModifyTransactionSuccess
	KindTransactionCommitRequest
	KindTransactionCanCommitSuccess
	KindTransactionPreCommitRequest
	KindTransactionPreCommitSuccess
	KindTransactionDoCommitRequest
	KindTransactionCommitSuccess
	KindTransactionAbortRequest
	KindTransactionAbortSuccess
	KindTransactionPurgeRequest
	KindTransactionPurgeResponse
	KindClientFailure
	KindHistoryFailure
	KindTransactionFailure

	kindEnd
)

type kindInfo struct {
	name    string
	since   abi.Revision
	scope   ids.Scope
	request bool
}

var kinds = [kindEnd]kindInfo{
	KindConnectClientRequest:        {"ConnectClientRequest", abi.Revision1, ids.ScopeClient, true},
	KindConnectClientSuccess:        {"ConnectClientSuccess", abi.Revision1, ids.ScopeClient, false},
	KindCreateLocalHistoryRequest:   {"CreateLocalHistoryRequest", abi.Revision1, ids.ScopeHistory, true},
	KindDestroyLocalHistoryRequest:  {"DestroyLocalHistoryRequest", abi.Revision1, ids.ScopeHistory, true},
	KindPurgeLocalHistoryRequest:    {"PurgeLocalHistoryRequest", abi.Revision1, ids.ScopeHistory, true},
	KindLocalHistorySuccess:         {"LocalHistorySuccess", abi.Revision1, ids.ScopeHistory, false},
	KindSkipTransactionsRequest:     {"SkipTransactionsRequest", abi.Revision2, ids.ScopeHistory, true},
	KindSkipTransactionsResponse:    {"SkipTransactionsResponse", abi.Revision2, ids.ScopeHistory, false},
	KindReadTransactionRequest:      {"ReadTransactionRequest", abi.Revision1, ids.ScopeTransaction, true},
	KindReadTransactionSuccess:      {"ReadTransactionSuccess", abi.Revision1, ids.ScopeTransaction, false},
	KindExistsTransactionRequest:    {"ExistsTransactionRequest", abi.Revision1, ids.ScopeTransaction, true},
	KindExistsTransactionSuccess:    {"ExistsTransactionSuccess", abi.Revision1, ids.ScopeTransaction, false},
	KindModifyTransactionRequest:    {"ModifyTransactionRequest", abi.Revision1, ids.ScopeTransaction, true},
	KindModifyTransactionSuccess:    {"ModifyTransactionSuccess", abi.Revision1, ids.ScopeTransaction, false},
	KindTransactionCommitRequest:    {"TransactionCommitRequest", abi.Revision1, ids.ScopeTransaction, true},
	KindTransactionCanCommitSuccess: {"TransactionCanCommitSuccess", abi.Revision1, ids.ScopeTransaction, false},
	KindTransactionPreCommitRequest: {"TransactionPreCommitRequest", abi.Revision1, ids.ScopeTransaction, true},
	KindTransactionPreCommitSuccess: {"TransactionPreCommitSuccess", abi.Revision1, ids.ScopeTransaction, false},
	KindTransactionDoCommitRequest:  {"TransactionDoCommitRequest", abi.Revision1, ids.ScopeTransaction, true},
	KindTransactionCommitSuccess:    {"TransactionCommitSuccess", abi.Revision1, ids.ScopeTransaction, false},
	KindTransactionAbortRequest:     {"TransactionAbortRequest", abi.Revision1, ids.ScopeTransaction, true},
	KindTransactionAbortSuccess:     {"TransactionAbortSuccess", abi.Revision1, ids.ScopeTransaction, false},
	KindTransactionPurgeRequest:     {"TransactionPurgeRequest", abi.Revision1, ids.ScopeTransaction, true},
	KindTransactionPurgeResponse:    {"TransactionPurgeResponse", abi.Revision1, ids.ScopeTransaction, false},
	KindClientFailure:               {"ClientFailure", abi.Revision1, ids.ScopeClient, false},
	KindHistoryFailure:              {"HistoryFailure", abi.Revision1, ids.ScopeHistory, false},
	KindTransactionFailure:          {"TransactionFailure", abi.Revision1, ids.ScopeTransaction, false},
}

// Kinds returns all defined kinds in wire order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindEnd-1)
	for k := Kind(1); k < kindEnd; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is a defined kind.
func (k Kind) Valid() bool {
	return k > 0 && k < kindEnd
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kinds[k].name
}

// Since returns the revision that introduced the kind.
func (k Kind) Since() abi.Revision {
	if !k.Valid() {
		return abi.RevisionUnknown
	}
	return kinds[k].since
}

// Scope returns the kind of identifier messages of this kind are addressed to.
func (k Kind) Scope() ids.Scope {
	if !k.Valid() {
		return 0
	}
	return kinds[k].scope
}

// IsRequest reports whether k is sent by a frontend.
func (k Kind) IsRequest() bool {
	return k.Valid() && kinds[k].request
}

// EndsTarget reports whether requests of kind k end the lifecycle of their
// target. The backend lets them skip sequence numbers a frontend lost.
func (k Kind) EndsTarget() bool {
	switch k {
	case KindDestroyLocalHistoryRequest, KindPurgeLocalHistoryRequest,
		KindTransactionAbortRequest, KindTransactionPurgeRequest:
		return true
	default:
		return false
	}
}

// AvailableAt reports whether messages of kind k can be expressed at r.
// The test-future sentinel accepts every kind.
func (k Kind) AvailableAt(r abi.Revision) bool {
	return k.Valid() && r >= k.Since()
}

// prototypes holds the zero value of every variant.
var prototypes = map[Kind]Message{
	KindConnectClientRequest:        ConnectClientRequest{},
	KindConnectClientSuccess:        ConnectClientSuccess{},
	KindCreateLocalHistoryRequest:   CreateLocalHistoryRequest{},
	KindDestroyLocalHistoryRequest:  DestroyLocalHistoryRequest{},
	KindPurgeLocalHistoryRequest:    PurgeLocalHistoryRequest{},
	KindLocalHistorySuccess:         LocalHistorySuccess{},
	KindSkipTransactionsRequest:     SkipTransactionsRequest{},
	KindSkipTransactionsResponse:    SkipTransactionsResponse{},
	KindReadTransactionRequest:      ReadTransactionRequest{},
	KindReadTransactionSuccess:      ReadTransactionSuccess{},
	KindExistsTransactionRequest:    ExistsTransactionRequest{},
	KindExistsTransactionSuccess:    ExistsTransactionSuccess{},
	KindModifyTransactionRequest:    ModifyTransactionRequest{},
	KindModifyTransactionSuccess:    ModifyTransactionSuccess{},
	KindTransactionCommitRequest:    TransactionCommitRequest{},
	KindTransactionCanCommitSuccess: TransactionCanCommitSuccess{},
	KindTransactionPreCommitRequest: TransactionPreCommitRequest{},
	KindTransactionPreCommitSuccess: TransactionPreCommitSuccess{},
	KindTransactionDoCommitRequest:  TransactionDoCommitRequest{},
	KindTransactionCommitSuccess:    TransactionCommitSuccess{},
	KindTransactionAbortRequest:     TransactionAbortRequest{},
	KindTransactionAbortSuccess:     TransactionAbortSuccess{},
	KindTransactionPurgeRequest:     TransactionPurgeRequest{},
	KindTransactionPurgeResponse:    TransactionPurgeResponse{},
	KindClientFailure:               ClientFailure{},
	KindHistoryFailure:              HistoryFailure{},
	KindTransactionFailure:          TransactionFailure{},
}

func init() {
	for _, k := range Kinds() {
		p, ok := prototypes[k]
		if !ok {
			panic(fmt.Sprintf("common: no prototype for %s", k))
		}
		if p.Kind() != k {
			panic(fmt.Sprintf("common: prototype for %s reports %s", k, p.Kind()))
		}
		if kinds[k].name == "" || kinds[k].scope == 0 {
			panic(fmt.Sprintf("common: kind %d is not described", k))
		}
	}
}

// Zero returns the zero value of the variant of kind k.
func Zero(k Kind) (Message, bool) {
	m, ok := prototypes[k]
	return m, ok
}

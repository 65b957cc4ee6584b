// Package fixtures builds populated protocol messages for tests of the
// packages that handle them.
package fixtures

import (
	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/rpc/common"
)

const ReplyTo common.Address = "frontend-7f3a"

func Client() ids.ClientID {
	return ids.ClientID{Frontend: ids.FrontendID{Member: "member-1", Type: "datastore"}, Generation: 4}
}

func History(h uint64) ids.HistoryID {
	return ids.HistoryID{Client: Client(), History: h, Cookie: 2}
}

func Tx(h, tx uint64) ids.TransactionID {
	return ids.TransactionID{History: History(h), Tx: tx}
}

func ptr[T any](v T) *T { return &v }

// Messages returns one populated message of every kind, tagged with the
// current revision. Optional fields of later revisions are set.
func Messages() []common.Message {
	client := common.NewHeader(Client(), 3, ReplyTo)
	history := common.NewHeader(History(1), 5, ReplyTo)
	tx := common.NewHeader(Tx(1, 0), 7, ReplyTo)

	return []common.Message{
		common.ConnectClientRequest{Header: client, MinRevision: abi.Revision1, MaxRevision: abi.Revision3,
			Revisions: []abi.Revision{abi.Revision1, abi.Revision2, abi.Revision3}},
		common.ConnectClientSuccess{Header: client, Negotiated: abi.Revision2, Backend: "member-2"},
		common.CreateLocalHistoryRequest{Header: history},
		common.DestroyLocalHistoryRequest{Header: history},
		common.PurgeLocalHistoryRequest{Header: history},
		common.LocalHistorySuccess{Header: history},
		common.SkipTransactionsRequest{Header: history, Transactions: []ids.TransactionID{Tx(1, 3), Tx(1, 4), Tx(1, 9)}},
		common.SkipTransactionsResponse{Header: history},
		common.ReadTransactionRequest{Header: tx, Path: "/inventory/items", SnapshotOnly: true, Priority: ptr[uint8](2)},
		common.ReadTransactionSuccess{Header: tx, Data: []byte(`{"count":3}`), DataVersion: ptr[uint64](41)},
		common.ExistsTransactionRequest{Header: tx, Path: "/inventory", SnapshotOnly: false},
		common.ExistsTransactionSuccess{Header: tx, Exists: true},
		common.ModifyTransactionRequest{Header: tx, Protocol: common.ProtocolThreePhase, Modifications: []datatree.Modification{
			datatree.Write("/inventory/items", []byte(`{"count":4}`)).WithExpectedVersion(41),
			datatree.Merge("/inventory", []byte(`{"owner":"ops"}`)),
			datatree.Delete("/inventory/old"),
		}},
		common.ModifyTransactionSuccess{Header: tx},
		common.TransactionCommitRequest{Header: tx, Coordinated: true},
		common.TransactionCanCommitSuccess{Header: tx},
		common.TransactionPreCommitRequest{Header: tx},
		common.TransactionPreCommitSuccess{Header: tx},
		common.TransactionDoCommitRequest{Header: tx},
		common.TransactionCommitSuccess{Header: tx, Index: 1 << 40},
		common.TransactionAbortRequest{Header: tx},
		common.TransactionAbortSuccess{Header: tx},
		common.TransactionPurgeRequest{Header: tx},
		common.TransactionPurgeResponse{Header: tx},
		common.ClientFailure{Header: client, Cause: common.Cause{Code: common.CauseNegotiation, Message: "no common revision"}},
		common.HistoryFailure{Header: history, Cause: common.Cause{Code: common.CauseClosed}},
		common.TransactionFailure{Header: tx, Cause: common.Cause{Code: common.CauseConflict, Message: "/inventory/items"}},
	}
}

// Minimal returns one message of every kind with every optional field unset.
func Minimal() []common.Message {
	client := common.NewHeader(Client(), 0, "")
	history := common.NewHeader(History(0), 0, "")
	tx := common.NewHeader(Tx(0, 0), 0, "")

	return []common.Message{
		common.ConnectClientRequest{Header: client},
		common.ConnectClientSuccess{Header: client},
		common.CreateLocalHistoryRequest{Header: history},
		common.DestroyLocalHistoryRequest{Header: history},
		common.PurgeLocalHistoryRequest{Header: history},
		common.LocalHistorySuccess{Header: history},
		common.SkipTransactionsRequest{Header: history},
		common.SkipTransactionsResponse{Header: history},
		common.ReadTransactionRequest{Header: tx, Path: "/"},
		common.ReadTransactionSuccess{Header: tx},
		common.ExistsTransactionRequest{Header: tx, Path: "/"},
		common.ExistsTransactionSuccess{Header: tx},
		common.ModifyTransactionRequest{Header: tx},
		common.ModifyTransactionSuccess{Header: tx},
		common.TransactionCommitRequest{Header: tx},
		common.TransactionCanCommitSuccess{Header: tx},
		common.TransactionPreCommitRequest{Header: tx},
		common.TransactionPreCommitSuccess{Header: tx},
		common.TransactionDoCommitRequest{Header: tx},
		common.TransactionCommitSuccess{Header: tx},
		common.TransactionAbortRequest{Header: tx},
		common.TransactionAbortSuccess{Header: tx},
		common.TransactionPurgeRequest{Header: tx},
		common.TransactionPurgeResponse{Header: tx},
		common.ClientFailure{Header: client, Cause: common.Cause{Code: common.CauseInternal}},
		common.HistoryFailure{Header: history, Cause: common.Cause{Code: common.CauseInternal}},
		common.TransactionFailure{Header: tx, Cause: common.Cause{Code: common.CauseInternal}},
	}
}

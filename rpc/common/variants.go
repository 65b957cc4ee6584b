package common

import "github.com/ValentinKolb/dTX/lib/abi"

// Kind, CloneAsVersion and withRevision of every variant. The prototype table
// in kind.go is checked against these at init.

func (m ConnectClientRequest) Kind() Kind { return KindConnectClientRequest }
func (m ConnectClientRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m ConnectClientRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m ConnectClientSuccess) Kind() Kind { return KindConnectClientSuccess }
func (m ConnectClientSuccess) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m ConnectClientSuccess) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m CreateLocalHistoryRequest) Kind() Kind { return KindCreateLocalHistoryRequest }
func (m CreateLocalHistoryRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m CreateLocalHistoryRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m DestroyLocalHistoryRequest) Kind() Kind { return KindDestroyLocalHistoryRequest }
func (m DestroyLocalHistoryRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m DestroyLocalHistoryRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m PurgeLocalHistoryRequest) Kind() Kind { return KindPurgeLocalHistoryRequest }
func (m PurgeLocalHistoryRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m PurgeLocalHistoryRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m LocalHistorySuccess) Kind() Kind { return KindLocalHistorySuccess }
func (m LocalHistorySuccess) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m LocalHistorySuccess) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m SkipTransactionsRequest) Kind() Kind { return KindSkipTransactionsRequest }
func (m SkipTransactionsRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m SkipTransactionsRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m SkipTransactionsResponse) Kind() Kind { return KindSkipTransactionsResponse }
func (m SkipTransactionsResponse) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m SkipTransactionsResponse) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m ReadTransactionRequest) Kind() Kind { return KindReadTransactionRequest }
func (m ReadTransactionRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m ReadTransactionRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m ReadTransactionSuccess) Kind() Kind { return KindReadTransactionSuccess }
func (m ReadTransactionSuccess) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m ReadTransactionSuccess) withRevision(r abi.Revision) Message {
	m.Header.Version = r
	return m
}

func (m ExistsTransactionRequest) Kind() Kind { return KindExistsTransactionRequest }
func (m ExistsTransactionRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m ExistsTransactionRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m ExistsTransactionSuccess) Kind() Kind { return KindExistsTransactionSuccess }
func (m ExistsTransactionSuccess) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m ExistsTransactionSuccess) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m ModifyTransactionRequest) Kind() Kind { return KindModifyTransactionRequest }
func (m ModifyTransactionRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m ModifyTransactionRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m ModifyTransactionSuccess) Kind() Kind { return KindModifyTransactionSuccess }
func (m ModifyTransactionSuccess) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m ModifyTransactionSuccess) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m TransactionCommitRequest) Kind() Kind { return KindTransactionCommitRequest }
func (m TransactionCommitRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m TransactionCommitRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m TransactionCanCommitSuccess) Kind() Kind { return KindTransactionCanCommitSuccess }
func (m TransactionCanCommitSuccess) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m TransactionCanCommitSuccess) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m TransactionPreCommitRequest) Kind() Kind { return KindTransactionPreCommitRequest }
func (m TransactionPreCommitRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m TransactionPreCommitRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m TransactionPreCommitSuccess) Kind() Kind { return KindTransactionPreCommitSuccess }
func (m TransactionPreCommitSuccess) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m TransactionPreCommitSuccess) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m TransactionDoCommitRequest) Kind() Kind { return KindTransactionDoCommitRequest }
func (m TransactionDoCommitRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m TransactionDoCommitRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m TransactionCommitSuccess) Kind() Kind { return KindTransactionCommitSuccess }
func (m TransactionCommitSuccess) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m TransactionCommitSuccess) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m TransactionAbortRequest) Kind() Kind { return KindTransactionAbortRequest }
func (m TransactionAbortRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m TransactionAbortRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m TransactionAbortSuccess) Kind() Kind { return KindTransactionAbortSuccess }
func (m TransactionAbortSuccess) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m TransactionAbortSuccess) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m TransactionPurgeRequest) Kind() Kind { return KindTransactionPurgeRequest }
func (m TransactionPurgeRequest) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m TransactionPurgeRequest) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m TransactionPurgeResponse) Kind() Kind { return KindTransactionPurgeResponse }
func (m TransactionPurgeResponse) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m TransactionPurgeResponse) withRevision(r abi.Revision) Message { m.Version = r; return m }

func (m ClientFailure) Kind() Kind                                     { return KindClientFailure }
func (m ClientFailure) CloneAsVersion(r abi.Revision) (Message, error) { return CloneAsVersion(m, r) }
func (m ClientFailure) withRevision(r abi.Revision) Message            { m.Version = r; return m }

func (m HistoryFailure) Kind() Kind                                     { return KindHistoryFailure }
func (m HistoryFailure) CloneAsVersion(r abi.Revision) (Message, error) { return CloneAsVersion(m, r) }
func (m HistoryFailure) withRevision(r abi.Revision) Message            { m.Version = r; return m }

func (m TransactionFailure) Kind() Kind { return KindTransactionFailure }
func (m TransactionFailure) CloneAsVersion(r abi.Revision) (Message, error) {
	return CloneAsVersion(m, r)
}
func (m TransactionFailure) withRevision(r abi.Revision) Message { m.Version = r; return m }

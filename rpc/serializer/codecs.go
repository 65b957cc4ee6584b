package serializer

import (
	"fmt"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/rpc/common"
)

// --------------------------------------------------------------------------
// Codec Table
// --------------------------------------------------------------------------

// envelope holds the decoded header fields shared by all variants.
type envelope struct {
	kind    common.Kind
	client  ids.ClientID
	history ids.HistoryID
	tx      ids.TransactionID
	seq     uint64
	replyTo common.Address
	rev     abi.Revision
}

func (e envelope) scope() ids.Scope { return e.kind.Scope() }

func (e envelope) clientHeader() common.Header[ids.ClientID] {
	return common.Header[ids.ClientID]{Target: e.client, Sequence: e.seq, ReplyTo: e.replyTo, Version: e.rev}
}

func (e envelope) historyHeader() common.Header[ids.HistoryID] {
	return common.Header[ids.HistoryID]{Target: e.history, Sequence: e.seq, ReplyTo: e.replyTo, Version: e.rev}
}

func (e envelope) txHeader() common.Header[ids.TransactionID] {
	return common.Header[ids.TransactionID]{Target: e.tx, Sequence: e.seq, ReplyTo: e.replyTo, Version: e.rev}
}

// codec encodes and decodes the payload of one kind at one revision.
// encode returns the presence flags of the message; flags lists the bits
// that are legal at this revision.
type codec struct {
	flags  byte
	encode func(w *writer, m common.Message) byte
	decode func(r *reader, e envelope, flags byte) common.Message
}

type codecKey struct {
	kind common.Kind
	rev  abi.Revision
}

// codecs is the revision indexed table filled by init from families.
var codecs = map[codecKey]codec{}

// families builds the codec of a kind for a given revision.
var families = map[common.Kind]func(rev abi.Revision) codec{
	common.KindConnectClientRequest: connectClientRequest,
	common.KindConnectClientSuccess: connectClientSuccess,
	common.KindCreateLocalHistoryRequest: bareHistory(func(h common.Header[ids.HistoryID]) common.Message {
		return common.CreateLocalHistoryRequest{Header: h}
	}),
	common.KindDestroyLocalHistoryRequest: bareHistory(func(h common.Header[ids.HistoryID]) common.Message {
		return common.DestroyLocalHistoryRequest{Header: h}
	}),
	common.KindPurgeLocalHistoryRequest: bareHistory(func(h common.Header[ids.HistoryID]) common.Message { return common.PurgeLocalHistoryRequest{Header: h} }),
	common.KindLocalHistorySuccess:      bareHistory(func(h common.Header[ids.HistoryID]) common.Message { return common.LocalHistorySuccess{Header: h} }),
	common.KindSkipTransactionsRequest:  skipTransactionsRequest,
	common.KindSkipTransactionsResponse: bareHistory(func(h common.Header[ids.HistoryID]) common.Message { return common.SkipTransactionsResponse{Header: h} }),
	common.KindReadTransactionRequest:   readTransactionRequest,
	common.KindReadTransactionSuccess:   readTransactionSuccess,
	common.KindExistsTransactionRequest: existsTransactionRequest,
	common.KindExistsTransactionSuccess: existsTransactionSuccess,
	common.KindModifyTransactionRequest: modifyTransactionRequest,
	common.KindModifyTransactionSuccess: bareTx(func(h common.Header[ids.TransactionID]) common.Message {
		return common.ModifyTransactionSuccess{Header: h}
	}),
	common.KindTransactionCommitRequest: transactionCommitRequest,
	common.KindTransactionCanCommitSuccess: bareTx(func(h common.Header[ids.TransactionID]) common.Message {
		return common.TransactionCanCommitSuccess{Header: h}
	}),
	common.KindTransactionPreCommitRequest: bareTx(func(h common.Header[ids.TransactionID]) common.Message {
		return common.TransactionPreCommitRequest{Header: h}
	}),
	common.KindTransactionPreCommitSuccess: bareTx(func(h common.Header[ids.TransactionID]) common.Message {
		return common.TransactionPreCommitSuccess{Header: h}
	}),
	common.KindTransactionDoCommitRequest: bareTx(func(h common.Header[ids.TransactionID]) common.Message {
		return common.TransactionDoCommitRequest{Header: h}
	}),
	common.KindTransactionCommitSuccess: transactionCommitSuccess,
	common.KindTransactionAbortRequest: bareTx(func(h common.Header[ids.TransactionID]) common.Message {
		return common.TransactionAbortRequest{Header: h}
	}),
	common.KindTransactionAbortSuccess: bareTx(func(h common.Header[ids.TransactionID]) common.Message {
		return common.TransactionAbortSuccess{Header: h}
	}),
	common.KindTransactionPurgeRequest: bareTx(func(h common.Header[ids.TransactionID]) common.Message {
		return common.TransactionPurgeRequest{Header: h}
	}),
	common.KindTransactionPurgeResponse: bareTx(func(h common.Header[ids.TransactionID]) common.Message {
		return common.TransactionPurgeResponse{Header: h}
	}),
	common.KindClientFailure:      failure,
	common.KindHistoryFailure:     failure,
	common.KindTransactionFailure: failure,
}

func init() {
	for k := range families {
		if !k.Valid() {
			panic(fmt.Sprintf("serializer: codec family for invalid kind %d", k))
		}
	}
	for _, k := range common.Kinds() {
		family, ok := families[k]
		if !ok {
			panic(fmt.Sprintf("serializer: no codec for %s", k))
		}
		for _, rev := range abi.Supported() {
			if k.AvailableAt(rev) {
				codecs[codecKey{k, rev}] = family(rev)
			}
		}
	}
}

// --------------------------------------------------------------------------
// Families
// --------------------------------------------------------------------------

func bareHistory(build func(common.Header[ids.HistoryID]) common.Message) func(abi.Revision) codec {
	return func(abi.Revision) codec {
		return codec{
			encode: func(*writer, common.Message) byte { return 0 },
			decode: func(_ *reader, e envelope, _ byte) common.Message { return build(e.historyHeader()) },
		}
	}
}

func bareTx(build func(common.Header[ids.TransactionID]) common.Message) func(abi.Revision) codec {
	return func(abi.Revision) codec {
		return codec{
			encode: func(*writer, common.Message) byte { return 0 },
			decode: func(_ *reader, e envelope, _ byte) common.Message { return build(e.txHeader()) },
		}
	}
}

const flagRevisions byte = 1 << 0

// The handshake is always sent at the oldest revision, so the exact revision
// list is part of every layout.
func connectClientRequest(abi.Revision) codec {
	c := codec{flags: flagRevisions}
	c.encode = func(w *writer, m common.Message) byte {
		msg := m.(common.ConnectClientRequest)
		w.u16(uint16(msg.MinRevision))
		w.u16(uint16(msg.MaxRevision))
		if msg.Revisions == nil {
			return 0
		}
		w.length(len(msg.Revisions))
		for _, r := range msg.Revisions {
			w.u16(uint16(r))
		}
		return flagRevisions
	}
	c.decode = func(r *reader, e envelope, flags byte) common.Message {
		msg := common.ConnectClientRequest{Header: e.clientHeader()}
		msg.MinRevision = abi.Revision(r.u16("min revision"))
		msg.MaxRevision = abi.Revision(r.u16("max revision"))
		if flags&flagRevisions != 0 {
			n := r.length("revision count", 2)
			msg.Revisions = make([]abi.Revision, n)
			for i := range msg.Revisions {
				msg.Revisions[i] = abi.Revision(r.u16("revision"))
			}
		}
		return msg
	}
	return c
}

func connectClientSuccess(abi.Revision) codec {
	return codec{
		encode: func(w *writer, m common.Message) byte {
			msg := m.(common.ConnectClientSuccess)
			w.u16(uint16(msg.Negotiated))
			w.str(msg.Backend)
			return 0
		},
		decode: func(r *reader, e envelope, _ byte) common.Message {
			return common.ConnectClientSuccess{
				Header:     e.clientHeader(),
				Negotiated: abi.Revision(r.u16("negotiated revision")),
				Backend:    r.str("backend"),
			}
		},
	}
}

const flagTransactions byte = 1 << 0

func skipTransactionsRequest(abi.Revision) codec {
	return codec{
		flags: flagTransactions,
		encode: func(w *writer, m common.Message) byte {
			msg := m.(common.SkipTransactionsRequest)
			if msg.Transactions == nil {
				return 0
			}
			w.length(len(msg.Transactions))
			for _, tx := range msg.Transactions {
				w.txID(tx)
			}
			return flagTransactions
		},
		decode: func(r *reader, e envelope, flags byte) common.Message {
			msg := common.SkipTransactionsRequest{Header: e.historyHeader()}
			if flags&flagTransactions != 0 {
				n := r.length("transaction count", 2)
				msg.Transactions = make([]ids.TransactionID, n)
				for i := range msg.Transactions {
					msg.Transactions[i] = r.txID()
				}
			}
			return msg
		},
	}
}

const (
	flagSnapshotOnly byte = 1 << 0
	flagPriority     byte = 1 << 1
)

func readTransactionRequest(rev abi.Revision) codec {
	c := codec{flags: flagSnapshotOnly}
	if rev >= abi.Revision3 {
		c.flags |= flagPriority
	}
	c.encode = func(w *writer, m common.Message) byte {
		msg := m.(common.ReadTransactionRequest)
		var flags byte
		if msg.SnapshotOnly {
			flags |= flagSnapshotOnly
		}
		w.str(msg.Path)
		if msg.Priority != nil {
			if rev < abi.Revision3 {
				w.fail("ReadTransactionRequest.Priority does not exist at %s", rev)
			}
			flags |= flagPriority
			w.u8(*msg.Priority)
		}
		return flags
	}
	c.decode = func(r *reader, e envelope, flags byte) common.Message {
		msg := common.ReadTransactionRequest{Header: e.txHeader(), SnapshotOnly: flags&flagSnapshotOnly != 0}
		msg.Path = r.str("path")
		if flags&flagPriority != 0 {
			p := r.u8("priority")
			msg.Priority = &p
		}
		return msg
	}
	return c
}

const (
	flagData    byte = 1 << 0
	flagVersion byte = 1 << 1
)

func readTransactionSuccess(rev abi.Revision) codec {
	c := codec{flags: flagData}
	if rev >= abi.Revision3 {
		c.flags |= flagVersion
	}
	c.encode = func(w *writer, m common.Message) byte {
		msg := m.(common.ReadTransactionSuccess)
		var flags byte
		if msg.Data != nil {
			flags |= flagData
			w.bytes(msg.Data)
		}
		if msg.DataVersion != nil {
			if rev < abi.Revision3 {
				w.fail("ReadTransactionSuccess.DataVersion does not exist at %s", rev)
			}
			flags |= flagVersion
			w.u64(*msg.DataVersion)
		}
		return flags
	}
	c.decode = func(r *reader, e envelope, flags byte) common.Message {
		msg := common.ReadTransactionSuccess{Header: e.txHeader()}
		if flags&flagData != 0 {
			msg.Data = r.bytes("data")
		}
		if flags&flagVersion != 0 {
			v := r.u64("version")
			msg.DataVersion = &v
		}
		return msg
	}
	return c
}

func existsTransactionRequest(abi.Revision) codec {
	return codec{
		flags: flagSnapshotOnly,
		encode: func(w *writer, m common.Message) byte {
			msg := m.(common.ExistsTransactionRequest)
			w.str(msg.Path)
			if msg.SnapshotOnly {
				return flagSnapshotOnly
			}
			return 0
		},
		decode: func(r *reader, e envelope, flags byte) common.Message {
			return common.ExistsTransactionRequest{
				Header:       e.txHeader(),
				Path:         r.str("path"),
				SnapshotOnly: flags&flagSnapshotOnly != 0,
			}
		},
	}
}

const flagExists byte = 1 << 0

func existsTransactionSuccess(abi.Revision) codec {
	return codec{
		flags: flagExists,
		encode: func(_ *writer, m common.Message) byte {
			if m.(common.ExistsTransactionSuccess).Exists {
				return flagExists
			}
			return 0
		},
		decode: func(_ *reader, e envelope, flags byte) common.Message {
			return common.ExistsTransactionSuccess{Header: e.txHeader(), Exists: flags&flagExists != 0}
		},
	}
}

const (
	flagModifications byte = 1 << 0

	modFlagData     byte = 1 << 0
	modFlagExpected byte = 1 << 1
)

func modifyTransactionRequest(rev abi.Revision) codec {
	modFlags := modFlagData
	if rev >= abi.Revision3 {
		modFlags |= modFlagExpected
	}
	return codec{
		flags: flagModifications,
		encode: func(w *writer, m common.Message) byte {
			msg := m.(common.ModifyTransactionRequest)
			w.u8(uint8(msg.Protocol))
			if msg.Modifications == nil {
				return 0
			}
			w.length(len(msg.Modifications))
			for _, mod := range msg.Modifications {
				var f byte
				if mod.Data != nil {
					f |= modFlagData
				}
				if mod.ExpectedVersion != nil {
					if modFlags&modFlagExpected == 0 {
						w.fail("Modification.ExpectedVersion does not exist at %s", rev)
					}
					f |= modFlagExpected
				}
				w.u8(uint8(mod.Op))
				w.u8(f)
				w.str(mod.Path)
				if mod.ExpectedVersion != nil {
					w.u64(*mod.ExpectedVersion)
				}
				if mod.Data != nil {
					w.bytes(mod.Data)
				}
			}
			return flagModifications
		},
		decode: func(r *reader, e envelope, flags byte) common.Message {
			msg := common.ModifyTransactionRequest{Header: e.txHeader()}
			msg.Protocol = common.PersistenceProtocol(r.u8("protocol"))
			if r.err == nil && !msg.Protocol.Valid() {
				r.fail("unknown persistence protocol %d", msg.Protocol)
			}
			if flags&flagModifications == 0 {
				return msg
			}
			n := r.length("modification count", 3)
			msg.Modifications = make([]datatree.Modification, n)
			for i := range msg.Modifications {
				mod := &msg.Modifications[i]
				mod.Op = datatree.Op(r.u8("op"))
				f := r.u8("modification flags")
				if r.err == nil && f&^modFlags != 0 {
					r.fail("unknown modification flags %#x", f)
				}
				if r.err == nil && (mod.Op < datatree.OpWrite || mod.Op > datatree.OpDelete) {
					r.fail("unknown operation %d", mod.Op)
				}
				mod.Path = r.str("path")
				if f&modFlagExpected != 0 {
					v := r.u64("expected version")
					mod.ExpectedVersion = &v
				}
				if f&modFlagData != 0 {
					mod.Data = r.bytes("data")
				}
			}
			return msg
		},
	}
}

const flagCoordinated byte = 1 << 0

func transactionCommitRequest(abi.Revision) codec {
	return codec{
		flags: flagCoordinated,
		encode: func(_ *writer, m common.Message) byte {
			if m.(common.TransactionCommitRequest).Coordinated {
				return flagCoordinated
			}
			return 0
		},
		decode: func(_ *reader, e envelope, flags byte) common.Message {
			return common.TransactionCommitRequest{Header: e.txHeader(), Coordinated: flags&flagCoordinated != 0}
		},
	}
}

func transactionCommitSuccess(abi.Revision) codec {
	return codec{
		encode: func(w *writer, m common.Message) byte {
			w.u64(m.(common.TransactionCommitSuccess).Index)
			return 0
		},
		decode: func(r *reader, e envelope, _ byte) common.Message {
			return common.TransactionCommitSuccess{Header: e.txHeader(), Index: r.u64("index")}
		},
	}
}

func failure(abi.Revision) codec {
	return codec{
		encode: func(w *writer, m common.Message) byte {
			cause, _ := common.FailureCause(m)
			w.u8(uint8(cause.Code))
			w.str(cause.Message)
			return 0
		},
		decode: func(r *reader, e envelope, _ byte) common.Message {
			cause := common.Cause{Code: common.CauseCode(r.u8("cause"))}
			if r.err == nil && !cause.Code.Valid() {
				r.fail("unknown cause code %d", cause.Code)
			}
			cause.Message = r.str("cause message")
			switch e.scope() {
			case ids.ScopeClient:
				return common.ClientFailure{Header: e.clientHeader(), Cause: cause}
			case ids.ScopeHistory:
				return common.HistoryFailure{Header: e.historyHeader(), Cause: cause}
			default:
				return common.TransactionFailure{Header: e.txHeader(), Cause: cause}
			}
		},
	}
}

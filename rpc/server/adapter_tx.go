package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/lib/store"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Backend State
// --------------------------------------------------------------------------

// txState is the lifecycle of a transaction on the backend:
//
//	open -> ready -> can-commit -> pre-committed -> committed
//	  \________\__________\_____________\-------> aborted
//
// Committed and aborted transactions stay until they are purged.
type txState uint8

const (
	txOpen txState = iota
	txReady
	txCanCommit
	txPreCommitted
	txCommitting
	txCommitted
	txAborted
)

func (s txState) String() string {
	switch s {
	case txOpen:
		return "open"
	case txReady:
		return "ready"
	case txCanCommit:
		return "can-commit"
	case txPreCommitted:
		return "pre-committed"
	case txCommitting:
		return "committing"
	case txCommitted:
		return "committed"
	case txAborted:
		return "aborted"
	default:
		return fmt.Sprintf("txState(%d)", uint8(s))
	}
}

// finished reports whether the transaction can be purged.
func (s txState) finished() bool {
	return s == txCommitted || s == txAborted
}

type transaction struct {
	id    ids.TransactionID
	state txState
	mods  []datatree.Modification
	index uint64
}

type localHistory struct {
	destroyed bool
}

// txServerAdapterImpl holds the transactions and histories of one shard.
// Requests of one target are serialized by the sequence gate; mu guards the
// maps and the transaction fields because history requests touch the
// transactions of their history.
type txServerAdapterImpl struct {
	member    string
	revisions []abi.Revision
	closer    ITargetCloser

	mu           sync.Mutex
	generations  map[ids.FrontendID]uint64
	histories    map[ids.HistoryID]*localHistory
	transactions map[ids.TransactionID]*transaction
}

// NewTxServerAdapter creates the adapter that runs the transaction protocol
// on top of a store.IStore. member is reported to connecting clients,
// revisions are the revisions this backend negotiates.
func NewTxServerAdapter(member string, revisions []abi.Revision, closer ITargetCloser) IRPCServerAdapter {
	return &txServerAdapterImpl{
		member:       member,
		revisions:    revisions,
		closer:       closer,
		generations:  make(map[ids.FrontendID]uint64),
		histories:    make(map[ids.HistoryID]*localHistory),
		transactions: make(map[ids.TransactionID]*transaction),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see server.IRPCServerAdapter)
// --------------------------------------------------------------------------

func (a *txServerAdapterImpl) Handle(req common.Message, st store.IStore) common.Message {
	if st == nil {
		return fail(req, common.CauseInternal, "handler: store is nil")
	}

	if r, ok := req.(common.ConnectClientRequest); ok {
		return a.connect(r)
	}

	// every other request belongs to a connected client generation
	if cause := a.checkClient(req.Key().History.Client); cause != nil {
		return common.NewFailure(req, *cause)
	}

	switch r := req.(type) {
	case common.CreateLocalHistoryRequest:
		return a.createHistory(r)
	case common.DestroyLocalHistoryRequest:
		return a.destroyHistory(r)
	case common.PurgeLocalHistoryRequest:
		return a.purgeHistory(r, st)
	case common.SkipTransactionsRequest:
		return a.skipTransactions(r)
	case common.ReadTransactionRequest:
		return a.read(r, st)
	case common.ExistsTransactionRequest:
		return a.exists(r, st)
	case common.ModifyTransactionRequest:
		return a.modify(r, st)
	case common.TransactionCommitRequest:
		return a.commit(r, st)
	case common.TransactionPreCommitRequest:
		return a.preCommit(r)
	case common.TransactionDoCommitRequest:
		return a.doCommit(r, st)
	case common.TransactionAbortRequest:
		return a.abort(r)
	case common.TransactionPurgeRequest:
		return a.purgeTransaction(r, st)
	default:
		// nil for responses, the server never hands them to the adapter
		return fail(req, common.CauseInvalidRequest, fmt.Sprintf("unsupported message kind %s", req.Kind()))
	}
}

// --------------------------------------------------------------------------
// Client Requests
// --------------------------------------------------------------------------

func (a *txServerAdapterImpl) connect(r common.ConnectClientRequest) common.Message {
	negotiated, err := a.negotiate(r)
	if err != nil {
		common.CountNegotiationFailure()
		Logger.Warningf("Negotiation with %s failed: %v", r.Target, err)
		return fail(r, common.CauseNegotiation, err.Error())
	}

	client := r.Target
	a.mu.Lock()
	defer a.mu.Unlock()

	known, ok := a.generations[client.Frontend]
	if ok && client.Generation < known {
		return fail(r, common.CauseRetired, fmt.Sprintf("generation %d was replaced by %d", client.Generation, known))
	}
	if ok && client.Generation > known {
		a.retireGeneration(client.Frontend, known)
	}
	a.generations[client.Frontend] = client.Generation

	Logger.Infof("Client %s connected at %s", client, negotiated)
	return common.ConnectClientSuccess{Header: r.Header, Negotiated: negotiated, Backend: a.member}
}

func (a *txServerAdapterImpl) negotiate(r common.ConnectClientRequest) (abi.Revision, error) {
	if r.Revisions != nil {
		return abi.Negotiate(a.revisions, r.Revisions)
	}
	negotiated, err := abi.NegotiateAdvertised(a.revisions, r.MaxRevision)
	if err != nil {
		return abi.RevisionUnknown, err
	}
	if negotiated < r.MinRevision {
		return abi.RevisionUnknown, errors.Wrapf(abi.ErrNoCommonRevision,
			"local=[%s] remote=%s..%s", abi.FormatRevisions(a.revisions), r.MinRevision, r.MaxRevision)
	}
	return negotiated, nil
}

// retireGeneration drops all state of an older client generation.
// a.mu must be held.
func (a *txServerAdapterImpl) retireGeneration(frontend ids.FrontendID, generation uint64) {
	old := ids.ClientID{Frontend: frontend, Generation: generation}
	for id := range a.transactions {
		if id.History.Client == old {
			delete(a.transactions, id)
		}
	}
	for h := range a.histories {
		if h.Client == old {
			delete(a.histories, h)
			a.closer.CloseHistory(h)
		}
	}
	a.closer.CloseHistory(ids.HistoryID{Client: old})
	Logger.Infof("Retired generation %d of %s", generation, frontend)
}

func (a *txServerAdapterImpl) checkClient(client ids.ClientID) *common.Cause {
	a.mu.Lock()
	known, ok := a.generations[client.Frontend]
	a.mu.Unlock()

	switch {
	case ok && client.Generation < known:
		return &common.Cause{Code: common.CauseRetired, Message: fmt.Sprintf("generation %d was replaced by %d", client.Generation, known)}
	case !ok || client.Generation > known:
		return &common.Cause{Code: common.CauseNotFound, Message: fmt.Sprintf("client %s is not connected", client)}
	}
	return nil
}

// --------------------------------------------------------------------------
// History Requests
// --------------------------------------------------------------------------

func (a *txServerAdapterImpl) createHistory(r common.CreateLocalHistoryRequest) common.Message {
	if r.Target.History == 0 {
		return fail(r, common.CauseInvalidRequest, "the standalone history always exists")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if h, ok := a.histories[r.Target]; ok {
		if h.destroyed {
			return fail(r, common.CauseClosed, fmt.Sprintf("history %s is destroyed", r.Target))
		}
		return fail(r, common.CauseInvalidState, fmt.Sprintf("history %s already exists", r.Target))
	}
	a.histories[r.Target] = &localHistory{}
	return common.LocalHistorySuccess{Header: r.Header}
}

func (a *txServerAdapterImpl) destroyHistory(r common.DestroyLocalHistoryRequest) common.Message {
	if r.Target.History == 0 {
		return fail(r, common.CauseInvalidRequest, "the standalone history cannot be destroyed")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.histories[r.Target]
	if !ok {
		return fail(r, common.CauseNotFound, fmt.Sprintf("history %s not found", r.Target))
	}
	h.destroyed = true

	// unfinished transactions of a destroyed history are aborted
	for id, tx := range a.transactions {
		if id.History == r.Target && tx.state != txCommitting && !tx.state.finished() {
			tx.state = txAborted
			tx.mods = nil
		}
	}
	return common.LocalHistorySuccess{Header: r.Header}
}

func (a *txServerAdapterImpl) purgeHistory(r common.PurgeLocalHistoryRequest, st store.IStore) common.Message {
	a.mu.Lock()
	h, ok := a.histories[r.Target]
	switch {
	case !ok:
		a.mu.Unlock()
		return fail(r, common.CauseNotFound, fmt.Sprintf("history %s not found", r.Target))
	case !h.destroyed:
		a.mu.Unlock()
		return fail(r, common.CauseInvalidState, fmt.Sprintf("history %s must be destroyed before it is purged", r.Target))
	}

	var committed []ids.TransactionID
	for id, tx := range a.transactions {
		if id.History != r.Target {
			continue
		}
		if tx.state == txCommitting {
			a.mu.Unlock()
			return fail(r, common.CauseInvalidState, fmt.Sprintf("transaction %s is committing", id))
		}
		if tx.state == txCommitted {
			committed = append(committed, id)
		}
	}
	a.mu.Unlock()

	for _, id := range committed {
		if err := st.Purge(id); err != nil {
			return storeFailure(r, err)
		}
	}

	a.mu.Lock()
	for id := range a.transactions {
		if id.History == r.Target {
			delete(a.transactions, id)
		}
	}
	delete(a.histories, r.Target)
	a.mu.Unlock()

	a.closer.CloseHistory(r.Target)
	a.closer.Close(r.Target.Key())
	return common.LocalHistorySuccess{Header: r.Header}
}

func (a *txServerAdapterImpl) skipTransactions(r common.SkipTransactionsRequest) common.Message {
	a.mu.Lock()
	if cause := a.historyUsable(r.Target); cause != nil {
		a.mu.Unlock()
		return common.NewFailure(r, *cause)
	}
	keys := make([]ids.Key, 0, len(r.Transactions))
	for _, id := range r.Transactions {
		if id.History != r.Target {
			a.mu.Unlock()
			return fail(r, common.CauseInvalidRequest, fmt.Sprintf("transaction %s does not belong to %s", id, r.Target))
		}
		if _, ok := a.transactions[id]; ok {
			a.mu.Unlock()
			return fail(r, common.CauseInvalidState, fmt.Sprintf("transaction %s is already in use", id))
		}
		keys = append(keys, id.Key())
	}
	a.mu.Unlock()

	a.closer.Close(keys...)
	return common.SkipTransactionsResponse{Header: r.Header}
}

// --------------------------------------------------------------------------
// Transaction Requests
// --------------------------------------------------------------------------

func (a *txServerAdapterImpl) read(r common.ReadTransactionRequest, st store.IStore) common.Message {
	node, found, failure := a.lookup(r, r.Target, r.Path, r.SnapshotOnly, st)
	if failure != nil {
		return failure
	}
	resp := common.ReadTransactionSuccess{Header: r.Header}
	if found {
		resp.Data = node.Data
		if resp.Data == nil {
			resp.Data = []byte{}
		}
		if version := node.Version; version != 0 {
			resp.DataVersion = &version
		}
	}
	return resp
}

func (a *txServerAdapterImpl) exists(r common.ExistsTransactionRequest, st store.IStore) common.Message {
	_, found, failure := a.lookup(r, r.Target, r.Path, r.SnapshotOnly, st)
	if failure != nil {
		return failure
	}
	return common.ExistsTransactionSuccess{Header: r.Header, Exists: found}
}

// lookup resolves path for a read or exists request. Snapshot-only lookups
// see the committed state, all others also see the transaction's own
// modifications.
func (a *txServerAdapterImpl) lookup(req common.Message, id ids.TransactionID, path string, snapshotOnly bool, st store.IStore) (datatree.Node, bool, common.Message) {
	a.mu.Lock()
	tx, cause := a.open(id, true)
	if cause != nil {
		a.mu.Unlock()
		return datatree.Node{}, false, common.NewFailure(req, *cause)
	}
	state, mods := tx.state, tx.mods
	a.mu.Unlock()

	if state != txOpen && state != txReady {
		return datatree.Node{}, false, fail(req, common.CauseInvalidState, fmt.Sprintf("transaction %s is %s", id, state))
	}

	node, found, err := st.Read(path)
	if err != nil {
		return datatree.Node{}, false, storeFailure(req, err)
	}
	if !snapshotOnly {
		node, found = datatree.Resolve(path, node, found, mods)
	}
	return node, found, nil
}

func (a *txServerAdapterImpl) modify(r common.ModifyTransactionRequest, st store.IStore) common.Message {
	if !r.Protocol.Valid() {
		return fail(r, common.CauseInvalidRequest, fmt.Sprintf("unknown persistence protocol %d", r.Protocol))
	}
	for i, mod := range r.Modifications {
		if err := mod.Validate(); err != nil {
			return fail(r, common.CauseInvalidRequest, fmt.Sprintf("modification %d: %v", i, err))
		}
	}

	a.mu.Lock()
	tx, cause := a.open(r.Target, true)
	if cause != nil {
		a.mu.Unlock()
		return common.NewFailure(r, *cause)
	}
	if tx.state != txOpen {
		a.mu.Unlock()
		return fail(r, common.CauseInvalidState, fmt.Sprintf("transaction %s is %s", tx.id, tx.state))
	}
	tx.mods = append(tx.mods, r.Modifications...)

	switch r.Protocol {
	case common.ProtocolReady:
		tx.state = txReady
	case common.ProtocolAbort:
		tx.state = txAborted
		tx.mods = nil
		a.mu.Unlock()
		return common.TransactionAbortSuccess{Header: r.Header}
	}
	a.mu.Unlock()

	switch r.Protocol {
	case common.ProtocolSimple:
		return a.commitNow(r, r.Header, tx, st)
	case common.ProtocolThreePhase:
		return a.canCommit(r, r.Header, tx, st)
	default:
		return common.ModifyTransactionSuccess{Header: r.Header}
	}
}

func (a *txServerAdapterImpl) commit(r common.TransactionCommitRequest, st store.IStore) common.Message {
	a.mu.Lock()
	tx, cause := a.open(r.Target, false)
	a.mu.Unlock()
	if cause != nil {
		return common.NewFailure(r, *cause)
	}
	if r.Coordinated {
		return a.canCommit(r, r.Header, tx, st)
	}
	return a.commitNow(r, r.Header, tx, st)
}

// canCommit is the first phase of a coordinated commit: the modifications are
// checked against the committed state without applying them.
func (a *txServerAdapterImpl) canCommit(req common.Message, h common.Header[ids.TransactionID], tx *transaction, st store.IStore) common.Message {
	a.mu.Lock()
	if tx.state != txOpen && tx.state != txReady {
		a.mu.Unlock()
		return fail(req, common.CauseInvalidState, fmt.Sprintf("transaction %s is %s", tx.id, tx.state))
	}
	tx.state = txReady
	mods := tx.mods
	a.mu.Unlock()

	if err := st.Check(mods); err != nil {
		failure := storeFailure(req, err)
		if cause, _ := common.FailureCause(failure); cause.Code != common.CauseInternal {
			a.setState(tx, txAborted)
		}
		return failure
	}

	a.setState(tx, txCanCommit)
	return common.TransactionCanCommitSuccess{Header: h}
}

func (a *txServerAdapterImpl) preCommit(r common.TransactionPreCommitRequest) common.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, cause := a.open(r.Target, false)
	if cause != nil {
		return common.NewFailure(r, *cause)
	}
	if tx.state != txCanCommit {
		return fail(r, common.CauseInvalidState, fmt.Sprintf("transaction %s is %s", tx.id, tx.state))
	}
	tx.state = txPreCommitted
	return common.TransactionPreCommitSuccess{Header: r.Header}
}

func (a *txServerAdapterImpl) doCommit(r common.TransactionDoCommitRequest, st store.IStore) common.Message {
	a.mu.Lock()
	tx, cause := a.open(r.Target, false)
	if cause == nil && tx.state != txPreCommitted {
		cause = &common.Cause{Code: common.CauseInvalidState, Message: fmt.Sprintf("transaction %s is %s", tx.id, tx.state)}
	}
	a.mu.Unlock()
	if cause != nil {
		return common.NewFailure(r, *cause)
	}
	return a.commitNow(r, r.Header, tx, st)
}

// commitNow hands the modifications of tx to the store.
func (a *txServerAdapterImpl) commitNow(req common.Message, h common.Header[ids.TransactionID], tx *transaction, st store.IStore) common.Message {
	a.mu.Lock()
	previous := tx.state
	switch previous {
	case txOpen, txReady, txPreCommitted:
	default:
		a.mu.Unlock()
		return fail(req, common.CauseInvalidState, fmt.Sprintf("transaction %s is %s", tx.id, tx.state))
	}
	tx.state = txCommitting
	mods := tx.mods
	a.mu.Unlock()

	start := time.Now()
	index, err := st.Commit(tx.id, mods)
	common.ObserveCommit(start)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		failure := storeFailure(req, err)
		if cause, _ := common.FailureCause(failure); cause.Code == common.CauseInternal {
			// the outcome is unknown, a later commit is deduplicated by the store
			tx.state = previous
		} else {
			tx.state = txAborted
			tx.mods = nil
		}
		return failure
	}
	tx.state = txCommitted
	tx.index = index
	tx.mods = nil
	return common.TransactionCommitSuccess{Header: h, Index: index}
}

func (a *txServerAdapterImpl) abort(r common.TransactionAbortRequest) common.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, cause := a.open(r.Target, true)
	if cause != nil {
		return common.NewFailure(r, *cause)
	}
	if tx.state == txCommitting || tx.state == txCommitted {
		return fail(r, common.CauseInvalidState, fmt.Sprintf("transaction %s is %s", tx.id, tx.state))
	}
	tx.state = txAborted
	tx.mods = nil
	return common.TransactionAbortSuccess{Header: r.Header}
}

func (a *txServerAdapterImpl) purgeTransaction(r common.TransactionPurgeRequest, st store.IStore) common.Message {
	a.mu.Lock()
	tx, ok := a.transactions[r.Target]
	if ok && !tx.state.finished() {
		a.mu.Unlock()
		return fail(r, common.CauseInvalidState, fmt.Sprintf("transaction %s is %s", tx.id, tx.state))
	}
	a.mu.Unlock()

	if ok && tx.state == txCommitted {
		if err := st.Purge(r.Target); err != nil {
			return storeFailure(r, err)
		}
	}

	a.mu.Lock()
	delete(a.transactions, r.Target)
	a.mu.Unlock()

	a.closer.Close(r.Target.Key())
	return common.TransactionPurgeResponse{Header: r.Header}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// open returns the transaction id, creating it if create is set.
// a.mu must be held.
func (a *txServerAdapterImpl) open(id ids.TransactionID, create bool) (*transaction, *common.Cause) {
	if tx, ok := a.transactions[id]; ok {
		return tx, nil
	}
	if !create {
		return nil, &common.Cause{Code: common.CauseNotFound, Message: fmt.Sprintf("transaction %s not found", id)}
	}
	if cause := a.historyUsable(id.History); cause != nil {
		return nil, cause
	}
	tx := &transaction{id: id, state: txOpen}
	a.transactions[id] = tx
	return tx, nil
}

// historyUsable checks that new transactions can start in h.
// a.mu must be held.
func (a *txServerAdapterImpl) historyUsable(h ids.HistoryID) *common.Cause {
	if h.History == 0 {
		return nil
	}
	state, ok := a.histories[h]
	switch {
	case !ok:
		return &common.Cause{Code: common.CauseNotFound, Message: fmt.Sprintf("history %s not found", h)}
	case state.destroyed:
		return &common.Cause{Code: common.CauseClosed, Message: fmt.Sprintf("history %s is destroyed", h)}
	}
	return nil
}

func (a *txServerAdapterImpl) setState(tx *transaction, state txState) {
	a.mu.Lock()
	tx.state = state
	if state == txAborted {
		tx.mods = nil
	}
	a.mu.Unlock()
}

// fail builds the failure response for req.
func fail(req common.Message, code common.CauseCode, msg string) common.Message {
	return common.NewFailure(req, common.Cause{Code: code, Message: msg})
}

// storeFailure maps a store error to the failure response for req.
func storeFailure(req common.Message, err error) common.Message {
	code := common.CauseInternal
	var se *store.Error
	if errors.As(err, &se) {
		switch se.Code {
		case store.RetCConflict:
			code = common.CauseConflict
		case store.RetCInvalidOperation:
			code = common.CauseInvalidRequest
		}
	}
	return fail(req, code, err.Error())
}

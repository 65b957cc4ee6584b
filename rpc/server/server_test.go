package server

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/common/fixtures"
	"github.com/ValentinKolb/dTX/rpc/serializer"
	"github.com/ValentinKolb/dTX/rpc/transport/inproc"
)

const testShard = 1

func newTestServer(t *testing.T, revisions []abi.Revision, seq common.SequencingConfig) *RPCServer {
	t.Helper()
	config := common.ServerConfig{
		Shards:     []common.ServerShard{{ShardID: testShard, Type: common.ShardTypeLocal}},
		Member:     "backend-test",
		Revisions:  revisions,
		Sequencing: seq,
	}
	config.Transport.Endpoint = t.Name()
	s := NewRPCServer(config, inproc.NewServerTransport(), serializer.NewBinarySerializer())
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s
}

// testPeer plays a frontend that talks to the server handler directly.
type testPeer struct {
	t      *testing.T
	s      *RPCServer
	ser    serializer.IRPCSerializer
	client ids.ClientID
	reply  common.Address
	seqs   map[ids.Key]uint64
}

func newTestPeer(t *testing.T, s *RPCServer) *testPeer {
	return &testPeer{t: t, s: s, ser: serializer.NewBinarySerializer(), client: fixtures.Client(), reply: fixtures.ReplyTo, seqs: map[ids.Key]uint64{}}
}

func header[T ids.Target](p *testPeer, target T) common.Header[T] {
	key := target.Key()
	seq := p.seqs[key]
	p.seqs[key] = seq + 1
	return common.NewHeader(target, seq, p.reply)
}

func (p *testPeer) history(h uint64) ids.HistoryID {
	return ids.HistoryID{Client: p.client, History: h, Cookie: 2}
}

func (p *testPeer) tx(h, tx uint64) ids.TransactionID {
	return ids.TransactionID{History: p.history(h), Tx: tx}
}

func (p *testPeer) send(m common.Message) common.Message {
	p.t.Helper()
	data, err := p.ser.Serialize(m)
	if err != nil {
		p.t.Fatalf("Serialize(%s) failed: %v", common.Describe(m), err)
	}
	resp := p.s.Handle(testShard, data)
	if len(resp) == 0 {
		p.t.Fatalf("empty response to %s", common.Describe(m))
	}
	msg, err := p.ser.Deserialize(resp)
	if err != nil {
		p.t.Fatalf("Deserialize response to %s failed: %v", common.Describe(m), err)
	}
	if msg.Key() != m.Key() || msg.Seq() != m.Seq() || msg.Reply() != m.Reply() {
		p.t.Fatalf("response %s does not echo %s", common.Describe(msg), common.Describe(m))
	}
	return msg
}

func (p *testPeer) connect() {
	p.t.Helper()
	resp := p.send(common.ConnectClientRequest{Header: header(p, p.client), MinRevision: abi.Oldest(), MaxRevision: abi.Current(), Revisions: abi.Supported()})
	if _, ok := resp.(common.ConnectClientSuccess); !ok {
		p.t.Fatalf("connect failed: %#v", resp)
	}
}

func expectCause(t *testing.T, resp common.Message, code common.CauseCode) {
	t.Helper()
	cause, ok := common.FailureCause(resp)
	if !ok {
		t.Fatalf("expected failure %s, got %#v", code, resp)
	}
	if cause.Code != code {
		t.Fatalf("expected cause %s, got %s", code, cause)
	}
}

func expectKind(t *testing.T, resp common.Message, kind common.Kind) {
	t.Helper()
	if resp.Kind() != kind {
		t.Fatalf("expected %s, got %#v", kind, resp)
	}
}

func TestNegotiation(t *testing.T) {
	s := newTestServer(t, []abi.Revision{abi.Revision1, abi.Revision2}, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)

	req := common.ConnectClientRequest{
		Header:      header(p, p.client),
		MinRevision: abi.Revision1,
		MaxRevision: abi.RevisionTestFuture,
		Revisions:   []abi.Revision{abi.Revision1, abi.Revision2, abi.RevisionTestFuture},
	}
	old, err := req.CloneAsVersion(abi.Oldest())
	if err != nil {
		t.Fatal(err)
	}
	// the handshake carries the exact list at revision 1
	if got := old.(common.ConnectClientRequest).Revisions; !reflect.DeepEqual(got, req.Revisions) {
		t.Fatalf("revisions at %s = %v", abi.Oldest(), got)
	}
	resp := p.send(old)
	expectKind(t, resp, common.KindConnectClientSuccess)
	if got := resp.(common.ConnectClientSuccess); got.Negotiated != abi.Revision2 || got.Backend != "backend-test" {
		t.Errorf("negotiated %+v", got)
	}

	req.Header = header(p, p.client)
	req.Version = abi.Revision2
	resp = p.send(req)
	expectKind(t, resp, common.KindConnectClientSuccess)
	if got := resp.(common.ConnectClientSuccess).Negotiated; got != abi.Revision2 {
		t.Errorf("negotiated %s, want %s", got, abi.Revision2)
	}
}

func TestNegotiationUsesExactRevisions(t *testing.T) {
	s := newTestServer(t, []abi.Revision{abi.Revision1, abi.Revision2}, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)

	tests := []struct {
		name      string
		revisions []abi.Revision
		want      abi.Revision
	}{
		{"non contiguous", []abi.Revision{abi.Revision1, abi.Revision3}, abi.Revision1},
		{"range only", nil, abi.Revision2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := common.ConnectClientRequest{Header: header(p, p.client), MinRevision: abi.Revision1, MaxRevision: abi.Revision3, Revisions: tt.revisions}
			req.Version = abi.Oldest()
			resp := p.send(req)
			expectKind(t, resp, common.KindConnectClientSuccess)
			if got := resp.(common.ConnectClientSuccess).Negotiated; got != tt.want {
				t.Errorf("negotiated %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNegotiationFailure(t *testing.T) {
	s := newTestServer(t, []abi.Revision{abi.Revision3}, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)

	// connects are understood at the oldest revision, the answer is sent there too
	req := common.ConnectClientRequest{Header: header(p, p.client), MinRevision: abi.Revision1, MaxRevision: abi.Revision2}
	req.Version = abi.Revision1
	resp := p.send(req)
	expectCause(t, resp, common.CauseNegotiation)
	if resp.Revision() != abi.Revision1 {
		t.Errorf("failure encoded at %s, want %s", resp.Revision(), abi.Revision1)
	}

	req = common.ConnectClientRequest{Header: header(p, p.client), MinRevision: abi.Revision1, MaxRevision: abi.Revision2, Revisions: []abi.Revision{abi.Revision1, abi.Revision2}}
	expectCause(t, p.send(req), common.CauseNegotiation)
}

func TestUnacceptedRevision(t *testing.T) {
	s := newTestServer(t, []abi.Revision{abi.Revision3}, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	p.connect()

	read := common.ReadTransactionRequest{Header: header(p, p.tx(0, 0)), Path: "/"}
	read.Version = abi.Revision1
	resp := p.send(read)
	expectCause(t, resp, common.CauseUnsupportedRevision)
	if resp.Revision() != abi.Revision1 {
		t.Errorf("failure encoded at %s, want %s", resp.Revision(), abi.Revision1)
	}
}

func TestRequestsBeforeConnect(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	expectCause(t, p.send(common.CreateLocalHistoryRequest{Header: header(p, p.history(1))}), common.CauseNotFound)
}

func TestRetiredGeneration(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	old := newTestPeer(t, s)
	old.connect()

	next := newTestPeer(t, s)
	next.client.Generation++
	next.connect()

	expectCause(t, old.send(common.CreateLocalHistoryRequest{Header: header(old, old.history(1))}), common.CauseRetired)
	expectKind(t, next.send(common.CreateLocalHistoryRequest{Header: header(next, next.history(1))}), common.KindLocalHistorySuccess)
}

func TestReadYourWritesAndSnapshot(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	p.connect()

	// commit /a in a first transaction of the standalone history
	tx0 := p.tx(0, 0)
	resp := p.send(common.ModifyTransactionRequest{Header: header(p, tx0), Protocol: common.ProtocolSimple,
		Modifications: []datatree.Modification{datatree.Write("/a", []byte("committed"))}})
	expectKind(t, resp, common.KindTransactionCommitSuccess)
	index := resp.(common.TransactionCommitSuccess).Index

	tx1 := p.tx(0, 1)
	expectKind(t, p.send(common.ModifyTransactionRequest{Header: header(p, tx1),
		Modifications: []datatree.Modification{datatree.Write("/a", []byte("pending")), datatree.Write("/b", []byte("new"))}}), common.KindModifyTransactionSuccess)

	read := func(path string, snapshot bool) common.ReadTransactionSuccess {
		t.Helper()
		resp := p.send(common.ReadTransactionRequest{Header: header(p, tx1), Path: path, SnapshotOnly: snapshot})
		expectKind(t, resp, common.KindReadTransactionSuccess)
		return resp.(common.ReadTransactionSuccess)
	}

	if got := read("/a", false); string(got.Data) != "pending" || got.DataVersion != nil {
		t.Errorf("transaction read of /a = %q", got.Data)
	}
	if got := read("/a", true); string(got.Data) != "committed" || got.DataVersion == nil || *got.DataVersion != index {
		t.Errorf("snapshot read of /a = %+v", got)
	}
	if got := read("/b", true); got.Data != nil {
		t.Errorf("snapshot read of /b = %q, want absent", got.Data)
	}

	exists := p.send(common.ExistsTransactionRequest{Header: header(p, tx1), Path: "/b"})
	if !exists.(common.ExistsTransactionSuccess).Exists {
		t.Error("/b should exist inside the transaction")
	}
}

func TestDuplicateModificationAppliedOnce(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	p.connect()

	tx := p.tx(0, 0)
	// advance the target to sequence 5
	for i := 0; i < 5; i++ {
		expectKind(t, p.send(common.ReadTransactionRequest{Header: header(p, tx), Path: "/"}), common.KindReadTransactionSuccess)
	}

	req := common.ModifyTransactionRequest{Header: header(p, tx), Protocol: common.ProtocolSimple,
		Modifications: []datatree.Modification{datatree.Merge("/counter", []byte(`{"n":1}`))}}
	if req.Sequence != 5 {
		t.Fatalf("sequence = %d", req.Sequence)
	}

	replayed := common.DuplicatesReplayed()
	first := p.send(req)
	second := p.send(req)

	expectKind(t, first, common.KindTransactionCommitSuccess)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("retry answered differently:\n%#v\n%#v", first, second)
	}
	if got := common.DuplicatesReplayed() - replayed; got != 1 {
		t.Errorf("replayed %d duplicates, want 1", got)
	}

	shard, _ := s.shards.Load(testShard)
	info, _ := shard.Store.GetInfo()
	if info.Committed != 1 || info.LastIndex != 1 {
		t.Errorf("store applied more than one commit: %s", info)
	}
}

func TestOutOfOrderIsBuffered(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	p.connect()

	tx := p.tx(0, 0)
	write := common.ModifyTransactionRequest{Header: header(p, tx), Modifications: []datatree.Modification{datatree.Write("/x", []byte("1"))}}
	read := common.ReadTransactionRequest{Header: header(p, tx), Path: "/x"}

	data, err := p.ser.Serialize(read)
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	var raw []byte
	wg.Add(1)
	go func() {
		defer wg.Done()
		raw = s.Handle(testShard, data)
	}()

	// the read waits for the write
	time.Sleep(20 * time.Millisecond)
	expectKind(t, p.send(write), common.KindModifyTransactionSuccess)
	wg.Wait()

	readResp, err := p.ser.Deserialize(raw)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	expectKind(t, readResp, common.KindReadTransactionSuccess)
	if got := readResp.(common.ReadTransactionSuccess).Data; string(got) != "1" {
		t.Errorf("read applied before the write: %q", got)
	}
}

func TestOutOfOrderTimeout(t *testing.T) {
	seq := common.DefaultSequencingConfig()
	seq.ReorderTimeout = 10 * time.Millisecond
	s := newTestServer(t, nil, seq)
	p := newTestPeer(t, s)
	p.connect()

	tx := p.tx(0, 0)
	header(p, tx) // sequence 0 is never sent
	expectCause(t, p.send(common.ReadTransactionRequest{Header: header(p, tx), Path: "/"}), common.CauseOutOfOrder)
}

func TestEndingRequestSkipsLostSequences(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	p.connect()

	tx := p.tx(0, 0)
	expectKind(t, p.send(common.ModifyTransactionRequest{Header: header(p, tx),
		Modifications: []datatree.Modification{datatree.Write("/lost", []byte("1"))}}), common.KindModifyTransactionSuccess)

	// sequence 1 never reaches the backend
	lost := common.ModifyTransactionRequest{Header: header(p, tx), Protocol: common.ProtocolSimple,
		Modifications: []datatree.Modification{datatree.Write("/lost", []byte("2"))}}

	abort := common.TransactionAbortRequest{Header: header(p, tx)}
	expectKind(t, p.send(abort), common.KindTransactionAbortSuccess)
	expectKind(t, p.send(abort), common.KindTransactionAbortSuccess)

	// a late copy of the lost request is refused without counting a violation
	violations := common.SequenceViolations()
	expectCause(t, p.send(lost), common.CauseInvalidState)
	if got := common.SequenceViolations() - violations; got != 0 {
		t.Errorf("late skipped request counted %d violations", got)
	}

	expectKind(t, p.send(common.TransactionPurgeRequest{Header: header(p, tx)}), common.KindTransactionPurgeResponse)

	read := common.ReadTransactionRequest{Header: header(p, p.tx(0, 1)), Path: "/lost", SnapshotOnly: true}
	resp := p.send(read)
	expectKind(t, resp, common.KindReadTransactionSuccess)
	if got := resp.(common.ReadTransactionSuccess); got.Data != nil {
		t.Errorf("skipped commit was applied: %q", got.Data)
	}
}

func TestSequenceViolationDegradesTrust(t *testing.T) {
	seq := common.DefaultSequencingConfig()
	seq.RetryWindow = 2
	seq.MaxPeerViolations = 2
	s := newTestServer(t, nil, seq)
	p := newTestPeer(t, s)
	p.connect()

	tx := p.tx(0, 0)
	var sent []common.Message
	for i := 0; i < 4; i++ {
		req := common.ReadTransactionRequest{Header: header(p, tx), Path: "/"}
		sent = append(sent, req)
		expectKind(t, p.send(req), common.KindReadTransactionSuccess)
	}

	// sequence 3 and 2 are inside the window
	expectKind(t, p.send(sent[3]), common.KindReadTransactionSuccess)
	expectKind(t, p.send(sent[2]), common.KindReadTransactionSuccess)

	before := common.SequenceViolations()
	expectCause(t, p.send(sent[0]), common.CauseSequenceViolation)
	expectCause(t, p.send(sent[1]), common.CauseSequenceViolation)
	if got := common.SequenceViolations() - before; got != 2 {
		t.Errorf("counted %d violations, want 2", got)
	}

	// the peer is no longer trusted, even for valid requests
	expectCause(t, p.send(common.ReadTransactionRequest{Header: header(p, tx), Path: "/"}), common.CauseUntrusted)

	// other peers are not affected
	other := newTestPeer(t, s)
	other.reply = "frontend-other"
	other.client.Frontend.Member = "member-2"
	other.connect()
}

func TestClientResynchronizes(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	p.connect()

	p.seqs[p.client.Key()] = 40
	p.connect()
}

func TestThreePhaseCommit(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	p.connect()

	tx := p.tx(0, 0)
	expectKind(t, p.send(common.ModifyTransactionRequest{Header: header(p, tx), Protocol: common.ProtocolReady,
		Modifications: []datatree.Modification{datatree.Write("/k", []byte("v"))}}), common.KindModifyTransactionSuccess)

	// no pre-commit before can-commit
	expectCause(t, p.send(common.TransactionPreCommitRequest{Header: header(p, tx)}), common.CauseInvalidState)

	expectKind(t, p.send(common.TransactionCommitRequest{Header: header(p, tx), Coordinated: true}), common.KindTransactionCanCommitSuccess)
	expectKind(t, p.send(common.TransactionPreCommitRequest{Header: header(p, tx)}), common.KindTransactionPreCommitSuccess)
	resp := p.send(common.TransactionDoCommitRequest{Header: header(p, tx)})
	expectKind(t, resp, common.KindTransactionCommitSuccess)

	// committed transactions cannot be aborted or modified
	expectCause(t, p.send(common.TransactionAbortRequest{Header: header(p, tx)}), common.CauseInvalidState)
	expectCause(t, p.send(common.ModifyTransactionRequest{Header: header(p, tx)}), common.CauseInvalidState)
}

func TestConflictingPrecondition(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	p.connect()

	tx0 := p.tx(0, 0)
	expectKind(t, p.send(common.ModifyTransactionRequest{Header: header(p, tx0), Protocol: common.ProtocolSimple,
		Modifications: []datatree.Modification{datatree.Write("/k", []byte("v1"))}}), common.KindTransactionCommitSuccess)

	tx1 := p.tx(0, 1)
	resp := p.send(common.ModifyTransactionRequest{Header: header(p, tx1), Protocol: common.ProtocolThreePhase,
		Modifications: []datatree.Modification{datatree.Write("/k", []byte("v2")).WithExpectedVersion(99)}})
	expectCause(t, resp, common.CauseConflict)

	// the failed transaction is aborted and can be purged
	expectKind(t, p.send(common.TransactionPurgeRequest{Header: header(p, tx1)}), common.KindTransactionPurgeResponse)
}

func TestPurgedTransactionIsClosed(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	p.connect()

	tx := p.tx(0, 0)
	expectKind(t, p.send(common.TransactionAbortRequest{Header: header(p, tx)}), common.KindTransactionAbortSuccess)
	purge := common.TransactionPurgeRequest{Header: header(p, tx)}
	expectKind(t, p.send(purge), common.KindTransactionPurgeResponse)

	// a retry of the purge is replayed, anything new is refused
	expectKind(t, p.send(purge), common.KindTransactionPurgeResponse)
	expectCause(t, p.send(common.ReadTransactionRequest{Header: header(p, tx), Path: "/"}), common.CauseClosed)
}

func TestHistoryLifecycle(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	p.connect()

	h := p.history(1)
	expectCause(t, p.send(common.ReadTransactionRequest{Header: header(p, p.tx(1, 0)), Path: "/"}), common.CauseNotFound)

	expectKind(t, p.send(common.CreateLocalHistoryRequest{Header: header(p, h)}), common.KindLocalHistorySuccess)
	expectCause(t, p.send(common.CreateLocalHistoryRequest{Header: header(p, h)}), common.CauseInvalidState)

	open := p.tx(1, 1)
	expectKind(t, p.send(common.ModifyTransactionRequest{Header: header(p, open),
		Modifications: []datatree.Modification{datatree.Write("/h", []byte("x"))}}), common.KindModifyTransactionSuccess)

	expectKind(t, p.send(common.SkipTransactionsRequest{Header: header(p, h), Transactions: []ids.TransactionID{p.tx(1, 2)}}), common.KindSkipTransactionsResponse)
	expectCause(t, p.send(common.ReadTransactionRequest{Header: header(p, p.tx(1, 2)), Path: "/"}), common.CauseClosed)

	expectCause(t, p.send(common.PurgeLocalHistoryRequest{Header: header(p, h)}), common.CauseInvalidState)
	expectKind(t, p.send(common.DestroyLocalHistoryRequest{Header: header(p, h)}), common.KindLocalHistorySuccess)

	// the open transaction was aborted, new ones cannot start
	expectCause(t, p.send(common.ModifyTransactionRequest{Header: header(p, open)}), common.CauseInvalidState)
	expectCause(t, p.send(common.ReadTransactionRequest{Header: header(p, p.tx(1, 3)), Path: "/"}), common.CauseClosed)

	expectKind(t, p.send(common.PurgeLocalHistoryRequest{Header: header(p, h)}), common.KindLocalHistorySuccess)
	expectCause(t, p.send(common.ReadTransactionRequest{Header: header(p, open), Path: "/"}), common.CauseClosed)
	expectCause(t, p.send(common.CreateLocalHistoryRequest{Header: header(p, h)}), common.CauseClosed)
}

func TestUndecodableRequest(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	if resp := s.Handle(testShard, []byte{0, 1, 2}); len(resp) != 0 {
		t.Errorf("expected empty response, got %v", resp)
	}
}

func TestUnknownShard(t *testing.T) {
	s := newTestServer(t, nil, common.DefaultSequencingConfig())
	p := newTestPeer(t, s)
	data, _ := p.ser.Serialize(common.ConnectClientRequest{Header: header(p, p.client), MinRevision: abi.Oldest(), MaxRevision: abi.Current()})
	msg, err := p.ser.Deserialize(s.Handle(99, data))
	if err != nil {
		t.Fatal(err)
	}
	expectCause(t, msg, common.CauseNotFound)
}

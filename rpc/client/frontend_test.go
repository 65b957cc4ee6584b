package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/serializer"
	"github.com/ValentinKolb/dTX/rpc/server"
	"github.com/ValentinKolb/dTX/rpc/transport/inproc"
	"github.com/cockroachdb/errors"
)

func startBackend(t *testing.T, endpoint string, revisions []abi.Revision) {
	t.Helper()
	config := common.ServerConfig{
		Shards:    []common.ServerShard{{ShardID: 1, Type: common.ShardTypeLocal}},
		Member:    "backend-" + endpoint,
		Revisions: revisions,
	}
	config.Transport.Endpoint = endpoint
	s := server.NewRPCServer(config, inproc.NewServerTransport(), serializer.NewBinarySerializer())
	go func() {
		if err := s.Serve(); err != nil {
			t.Errorf("Serve failed: %v", err)
		}
	}()
	t.Cleanup(func() { s.Close() })

	deadline := time.Now().Add(time.Second)
	for !inproc.Listening(endpoint) {
		if time.Now().After(deadline) {
			t.Fatalf("backend %s did not start", endpoint)
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestFrontend(t *testing.T, endpoint string, generation uint64, revisions []abi.Revision, fault inproc.Fault) *Frontend {
	t.Helper()
	config := common.ClientConfig{
		Member:       "member-1",
		FrontendType: "datastore",
		Generation:   generation,
		Revisions:    revisions,
		Retry: common.RetryConfig{
			AttemptTimeout: 200 * time.Millisecond,
			MaxAttempts:    5,
			Backoff:        common.BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond},
		},
	}
	config.Transport.Endpoints = []string{endpoint}

	f, err := NewFrontend(1, config, inproc.NewClientTransport(fault), serializer.NewBinarySerializer())
	if err != nil {
		t.Fatalf("NewFrontend failed: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func connected(t *testing.T, f *Frontend, want abi.Revision) {
	t.Helper()
	got, err := f.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if got != want || f.Revision() != want {
		t.Fatalf("negotiated %s, want %s", got, want)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	ctx := context.Background()
	startBackend(t, t.Name(), nil)
	f := newTestFrontend(t, t.Name(), 1, nil, nil)
	connected(t, f, abi.Current())
	if f.Backend() != "backend-"+t.Name() {
		t.Errorf("backend = %q", f.Backend())
	}

	h, err := f.CreateHistory(ctx)
	if err != nil {
		t.Fatalf("CreateHistory failed: %v", err)
	}

	tx := h.Begin()
	if err := tx.Write(ctx, "/inventory", []byte(`{"count":1}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := tx.Merge(ctx, "/inventory", []byte(`{"owner":"ops"}`)); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	own, err := tx.Read(ctx, "/inventory", false)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !own.Found || string(own.Data) != `{"count":1,"owner":"ops"}` {
		t.Errorf("transaction read = %+v", own)
	}
	snapshot, err := tx.Read(ctx, "/inventory", true)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if snapshot.Found {
		t.Errorf("snapshot read sees uncommitted data: %+v", snapshot)
	}

	index, err := tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	next := h.Begin()
	committed, err := next.Read(ctx, "/inventory", true)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !committed.Found || committed.Version == nil || *committed.Version != index {
		t.Errorf("committed read = %+v, want version %d", committed, index)
	}
	if err := next.Abort(ctx); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	for _, done := range []*Transaction{tx, next} {
		if err := done.Purge(ctx); err != nil {
			t.Fatalf("Purge failed: %v", err)
		}
	}

	if _, err := h.Skip(ctx, 2); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	if err := h.Destroy(ctx); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if err := h.Purge(ctx); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n := f.Sequencer().Outstanding(); n != 0 {
		t.Errorf("%d requests still outstanding", n)
	}
}

func TestCoordinatedCommit(t *testing.T) {
	ctx := context.Background()
	startBackend(t, t.Name(), nil)
	f := newTestFrontend(t, t.Name(), 1, nil, nil)
	connected(t, f, abi.Current())

	tx := f.Standalone().Begin()
	if err := tx.Ready(ctx, datatree.Write("/a", []byte("1")), datatree.Write("/a/b", []byte("2"))); err != nil {
		t.Fatalf("Ready failed: %v", err)
	}
	if err := tx.Write(ctx, "/c", nil); !common.HasCause(err, common.CauseInvalidState) {
		t.Errorf("write to a sealed transaction: %v", err)
	}
	index, err := tx.CommitCoordinated(ctx)
	if err != nil {
		t.Fatalf("CommitCoordinated failed: %v", err)
	}

	// a stale precondition is a conflict
	stale := f.Standalone().Begin()
	_, err = stale.Submit(ctx, datatree.Delete("/a").WithExpectedVersion(index+1))
	if !common.HasCause(err, common.CauseConflict) {
		t.Fatalf("expected a conflict, got %v", err)
	}

	ok := f.Standalone().Begin()
	if _, err := ok.Submit(ctx, datatree.Delete("/a").WithExpectedVersion(index)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	// committed transactions refuse reads
	if _, err := ok.Exists(ctx, "/a/b", true); !common.HasCause(err, common.CauseInvalidState) {
		t.Errorf("Exists after commit: %v", err)
	}
	check := f.Standalone().Begin()
	if exists, err := check.Exists(ctx, "/a/b", true); err != nil || exists {
		t.Errorf("/a/b survived the delete of its parent: %v, %v", exists, err)
	}
}

func TestLostResponseCommitsOnce(t *testing.T) {
	ctx := context.Background()
	startBackend(t, t.Name(), nil)
	// request 1 is the connect, request 2 the first commit
	fault := func(n, _ uint64, _ []byte) inproc.FaultAction {
		return inproc.FaultAction{DropResponse: n == 2}
	}
	f := newTestFrontend(t, t.Name(), 1, nil, fault)
	connected(t, f, abi.Current())
	replayed := common.DuplicatesReplayed()

	first, err := f.Standalone().Begin().Submit(ctx, datatree.Merge("/counter", []byte(`{"n":1}`)))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	second, err := f.Standalone().Begin().Submit(ctx, datatree.Merge("/counter", []byte(`{"m":1}`)))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if second != first+1 {
		t.Errorf("commit indexes %d and %d, the retry was applied twice", first, second)
	}
	if got := common.DuplicatesReplayed() - replayed; got != 1 {
		t.Errorf("replayed %d duplicates, want 1", got)
	}
}

func TestRollingUpgrade(t *testing.T) {
	ctx := context.Background()
	old := t.Name() + "-old"
	startBackend(t, old, []abi.Revision{abi.Revision1, abi.Revision2})

	// a current frontend talks revision 2 to the old backend
	f := newTestFrontend(t, old, 1, nil, nil)
	connected(t, f, abi.Revision2)

	_, err := f.Standalone().Begin().Submit(ctx, datatree.Write("/k", []byte("v")).WithExpectedVersion(0))
	if !errors.Is(err, common.ErrUnsupportedDowngrade) {
		t.Fatalf("expected ErrUnsupportedDowngrade, got %v", err)
	}
	if _, err := f.Standalone().Begin().Submit(ctx, datatree.Write("/k", []byte("v"))); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	read, err := f.Standalone().Begin().ReadWithPriority(ctx, "/k", true, 1)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !read.Found || read.Version != nil {
		t.Errorf("revision 2 read = %+v, want data without version", read)
	}

	// an old frontend talks revision 1 to an upgraded backend
	upgraded := t.Name() + "-new"
	startBackend(t, upgraded, nil)
	legacy := newTestFrontend(t, upgraded, 1, []abi.Revision{abi.Revision1}, nil)
	connected(t, legacy, abi.Revision1)
	if _, err := legacy.Standalone().Begin().Submit(ctx, datatree.Write("/k", []byte("v1"))); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
}

func TestNegotiationFailure(t *testing.T) {
	startBackend(t, t.Name(), []abi.Revision{abi.Revision3})
	f := newTestFrontend(t, t.Name(), 1, []abi.Revision{abi.Revision1, abi.Revision2}, nil)

	if _, err := f.Connect(context.Background()); !errors.Is(err, common.ErrNegotiationFailure) {
		t.Fatalf("expected ErrNegotiationFailure, got %v", err)
	}
	if f.Revision() != abi.Oldest() {
		t.Errorf("revision changed to %s after a failed negotiation", f.Revision())
	}
}

func TestNonContiguousRevisions(t *testing.T) {
	tests := []struct {
		name     string
		backend  []abi.Revision
		frontend []abi.Revision
	}{
		{"frontend has a hole", []abi.Revision{abi.Revision1, abi.Revision2}, []abi.Revision{abi.Revision1, abi.Revision3}},
		{"backend has a hole", []abi.Revision{abi.Revision1, abi.Revision3}, []abi.Revision{abi.Revision1, abi.Revision2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := abi.Negotiate(tt.frontend, tt.backend)
			if err != nil {
				t.Fatalf("Negotiate failed: %v", err)
			}
			startBackend(t, t.Name(), tt.backend)
			f := newTestFrontend(t, t.Name(), 1, tt.frontend, nil)
			connected(t, f, want)
			if want != abi.Revision1 {
				t.Errorf("negotiated %s, want %s", want, abi.Revision1)
			}
		})
	}
}

func TestLostWriteStillAborts(t *testing.T) {
	ctx := context.Background()
	startBackend(t, t.Name(), nil)
	var drop atomic.Bool
	fault := func(_, _ uint64, req []byte) inproc.FaultAction {
		modify := len(req) > 2 && common.Kind(req[2]) == common.KindModifyTransactionRequest
		return inproc.FaultAction{DropRequest: drop.Load() && modify}
	}
	f := newTestFrontend(t, t.Name(), 1, nil, fault)
	connected(t, f, abi.Current())

	tx := f.Standalone().Begin()
	if err := tx.Write(ctx, "/lost", []byte("1")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	drop.Store(true)
	if err := tx.Write(ctx, "/lost", []byte("2")); !errors.Is(err, common.ErrTimeout) {
		t.Fatalf("expected a timeout, got %v", err)
	}
	drop.Store(false)

	if err := tx.Write(ctx, "/lost", []byte("3")); !errors.Is(err, ErrTargetLost) {
		t.Fatalf("expected ErrTargetLost, got %v", err)
	}
	if err := tx.Abort(ctx); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if err := tx.Purge(ctx); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	read, err := f.Standalone().Begin().Read(ctx, "/lost", true)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if read.Found {
		t.Errorf("aborted data is visible: %+v", read)
	}
}

func TestRetiredGeneration(t *testing.T) {
	ctx := context.Background()
	startBackend(t, t.Name(), nil)
	old := newTestFrontend(t, t.Name(), 1, nil, nil)
	connected(t, old, abi.Current())
	restarted := newTestFrontend(t, t.Name(), 2, nil, nil)
	connected(t, restarted, abi.Current())

	if _, err := old.CreateHistory(ctx); !common.HasCause(err, common.CauseRetired) {
		t.Errorf("expected the old generation to be retired, got %v", err)
	}
	if _, err := restarted.CreateHistory(ctx); err != nil {
		t.Errorf("CreateHistory failed: %v", err)
	}
}

package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/rpc/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Sequence Gate
// --------------------------------------------------------------------------

// sequenceGate admits the requests of every target strictly in sequence
// order. Each target starts at sequence 0.
//
//   - seq == next: the request is applied and its response remembered
//   - seq > next: the request waits for its predecessors (bounded by
//     MaxBufferedPerTarget and ReorderTimeout) and fails with CauseOutOfOrder
//     if they do not arrive
//   - seq < next and remembered: the remembered response is replayed, the
//     request is not applied again
//   - seq < next and forgotten: sequence violation
//
// Client scoped targets (ConnectClientRequest) may skip forward, a frontend
// that lost its sequence state can always reconnect. Requests that end their
// target (abort, purge, destroy) skip the sequence numbers still missing, so
// a frontend that gave up on a request can release the target. Skipped
// requests that arrive later fail with CauseInvalidState.
type sequenceGate struct {
	config common.SequencingConfig
	live   *xsync.MapOf[ids.Key, *targetGate]
	closed *lru.Cache // ids.Key -> *targetGate
	peers  *lru.Cache // common.Address -> *atomic.Int64
}

// targetGate is the sequencing state of one target.
type targetGate struct {
	mu       sync.Mutex
	next     uint64
	waiting  int
	advanced chan struct{} // closed and replaced whenever next moves
	replies  map[uint64]common.Message
	skipped  []seqRange
	closed   atomic.Bool // set without mu, a target may close itself while applying
}

// seqRange is the half open range [from, to) of skipped sequence numbers.
type seqRange struct {
	from, to uint64
}

func newSequenceGate(config common.SequencingConfig) (*sequenceGate, error) {
	size := config.PurgedCacheSize
	if size < 1 {
		size = 1
	}
	closed, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	peers, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &sequenceGate{
		config: config,
		live:   xsync.NewMapOf[ids.Key, *targetGate](),
		closed: closed,
		peers:  peers,
	}, nil
}

func newTargetGate() *targetGate {
	return &targetGate{advanced: make(chan struct{}), replies: make(map[uint64]common.Message)}
}

// Process runs apply for req once all its predecessors were applied and
// returns the response for req.
func (g *sequenceGate) Process(req common.Message, apply func() common.Message) common.Message {
	if g.untrusted(req.Reply()) {
		return common.NewFailure(req, common.Cause{Code: common.CauseUntrusted, Message: fmt.Sprintf("too many sequence violations from %q", req.Reply())})
	}

	key, seq := req.Key(), req.Seq()
	t := g.target(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		switch {
		case seq < t.next || t.closed.Load():
			if resp, ok := t.replies[seq]; ok && seq < t.next {
				common.CountDuplicateReplayed()
				Logger.Debugf("Replaying response for duplicate %s", common.Describe(req))
				return resp
			}
			if t.wasSkipped(seq) {
				Logger.Debugf("Rejecting skipped %s", common.Describe(req))
				return common.NewFailure(req, common.Cause{Code: common.CauseInvalidState, Message: fmt.Sprintf("sequence %d was skipped", seq)})
			}
			if t.closed.Load() {
				return common.NewFailure(req, common.Cause{Code: common.CauseClosed, Message: key.String() + " is closed"})
			}
			return g.violation(req, t.next)

		case seq == t.next:
			resp := apply()
			t.remember(seq, resp, g.config.RetryWindow)
			t.advance(seq + 1)
			return resp

		case key.Scope == ids.ScopeClient:
			Logger.Infof("Resynchronizing %s from sequence %d to %d", key, t.next, seq)
			for old := range t.replies {
				if old+uint64(g.config.RetryWindow) < seq {
					delete(t.replies, old)
				}
			}
			t.advance(seq)

		case req.Kind().EndsTarget():
			Logger.Infof("Skipping sequence %d to %d of %s for %s", t.next, seq-1, key, req.Kind())
			t.skip(seq, g.config.RetryWindow)

		default:
			if t.waiting >= g.config.MaxBufferedPerTarget {
				return g.outOfOrder(req, t.next, "reorder buffer full")
			}
			if timer == nil {
				timer = time.NewTimer(g.config.ReorderTimeout)
			}
			advanced := t.advanced
			t.waiting++
			t.mu.Unlock()

			timedOut := false
			select {
			case <-advanced:
			case <-timer.C:
				timedOut = true
			}

			t.mu.Lock()
			t.waiting--
			if timedOut && seq > t.next {
				return g.outOfOrder(req, t.next, "predecessors did not arrive")
			}
		}
	}
}

// Close retires the targets: remembered responses are still replayed, every
// other request fails with CauseClosed. Targets never seen are closed too.
func (g *sequenceGate) Close(keys ...ids.Key) {
	for _, key := range keys {
		t, ok := g.live.LoadAndDelete(key)
		if !ok {
			if _, known := g.closed.Get(key); known {
				continue
			}
			t = newTargetGate()
		}
		t.closed.Store(true)
		g.closed.Add(key, t)
	}
}

// CloseHistory retires every live target of the history.
func (g *sequenceGate) CloseHistory(history ids.HistoryID) {
	var keys []ids.Key
	g.live.Range(func(key ids.Key, _ *targetGate) bool {
		if key.Scope != ids.ScopeClient && key.History == history {
			keys = append(keys, key)
		}
		return true
	})
	g.Close(keys...)
}

// Live returns the number of targets with sequencing state.
func (g *sequenceGate) Live() int {
	return g.live.Size()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (g *sequenceGate) target(key ids.Key) *targetGate {
	if t, ok := g.live.Load(key); ok {
		return t
	}
	if t, ok := g.closed.Get(key); ok {
		return t.(*targetGate)
	}
	t, _ := g.live.LoadOrCompute(key, newTargetGate)
	return t
}

func (g *sequenceGate) violation(req common.Message, next uint64) common.Message {
	common.CountSequenceViolation()
	violations := g.peerViolations(req.Reply()).Add(1)
	Logger.Warningf("Sequence violation from %q: %s, expected sequence %d (violation %d)",
		req.Reply(), common.Describe(req), next, violations)
	return common.NewFailure(req, common.Cause{
		Code:    common.CauseSequenceViolation,
		Message: fmt.Sprintf("sequence %d is outside the retry window, expected %d", req.Seq(), next),
	})
}

func (g *sequenceGate) outOfOrder(req common.Message, next uint64, reason string) common.Message {
	common.CountOutOfOrderRejected()
	Logger.Debugf("Rejecting early %s, expected sequence %d: %s", common.Describe(req), next, reason)
	return common.NewFailure(req, common.Cause{
		Code:    common.CauseOutOfOrder,
		Message: fmt.Sprintf("%s, expected sequence %d", reason, next),
	})
}

func (g *sequenceGate) peerViolations(peer common.Address) *atomic.Int64 {
	if v, ok := g.peers.Get(peer); ok {
		return v.(*atomic.Int64)
	}
	counter := new(atomic.Int64)
	if ok, _ := g.peers.ContainsOrAdd(peer, counter); ok {
		if v, ok := g.peers.Get(peer); ok {
			return v.(*atomic.Int64)
		}
	}
	return counter
}

func (g *sequenceGate) untrusted(peer common.Address) bool {
	if g.config.MaxPeerViolations <= 0 {
		return false
	}
	v, ok := g.peers.Peek(peer)
	return ok && v.(*atomic.Int64).Load() >= int64(g.config.MaxPeerViolations)
}

// remember stores the response of seq and forgets the one that left the window.
func (t *targetGate) remember(seq uint64, resp common.Message, window int) {
	if window <= 0 {
		return
	}
	t.replies[seq] = resp
	if seq >= uint64(window) {
		delete(t.replies, seq-uint64(window))
	}
}

// skip moves next forward to seq and records the sequence numbers passed over.
// Ranges that left the retry window are forgotten.
func (t *targetGate) skip(seq uint64, window int) {
	kept := t.skipped[:0]
	for _, r := range t.skipped {
		if r.to+uint64(max(window, 0)) >= seq {
			kept = append(kept, r)
		}
	}
	t.skipped = append(kept, seqRange{from: t.next, to: seq})
	t.advance(seq)
}

func (t *targetGate) wasSkipped(seq uint64) bool {
	for _, r := range t.skipped {
		if seq >= r.from && seq < r.to {
			return true
		}
	}
	return false
}

func (t *targetGate) advance(next uint64) {
	t.next = next
	close(t.advanced)
	t.advanced = make(chan struct{})
}

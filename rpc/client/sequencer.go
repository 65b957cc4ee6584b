package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/serializer"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Request State
// --------------------------------------------------------------------------

// RequestState is the lifecycle of an outstanding request:
//
//	Pending -> Acknowledged
//	Pending -> Retrying -> Acknowledged | Failed
type RequestState uint32

const (
	StatePending RequestState = iota
	StateRetrying
	StateAcknowledged
	StateFailed
)

func (s RequestState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRetrying:
		return "retrying"
	case StateAcknowledged:
		return "acknowledged"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("RequestState(%d)", uint32(s))
	}
}

// Resolved reports whether no more responses are accepted.
func (s RequestState) Resolved() bool {
	return s == StateAcknowledged || s == StateFailed
}

// TimeoutError is returned when the retry budget of a request is exhausted.
type TimeoutError struct {
	Target   ids.Key
	Sequence uint64
	Attempts int
	Last     error // failure of the last attempt
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %d to %s timed out after %d attempts: %v", e.Sequence, e.Target, e.Attempts, e.Last)
}

func (e *TimeoutError) Unwrap() error { return common.ErrTimeout }

var (
	errAttemptTimeout = errors.New("no response within the attempt timeout")
	// errEmptyResponse means the backend could not decode the request.
	// Sending the same bytes again cannot succeed.
	errEmptyResponse = errors.New("backend returned an empty response")

	// ErrTargetLost is returned for requests to a target after one of its
	// requests timed out. The backend may be waiting for the lost sequence
	// number, only requests ending the target (abort, purge, destroy) are
	// still sent.
	ErrTargetLost = errors.New("an earlier request to the target timed out")
)

// --------------------------------------------------------------------------
// Sequencer
// --------------------------------------------------------------------------

// Sequencer numbers the requests of every target, retransmits them until a
// response arrives and matches responses to their requests.
//
// Each target (client, history or transaction) has its own sequence numbers
// starting at 0. A retry reuses the sequence number and the encoded bytes of
// the first transmission, so the backend can recognize it. Responses to
// unknown or already resolved requests are stale: they are counted and
// dropped.
type Sequencer struct {
	shardId    uint64
	replyTo    common.Address
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
	retry      common.RetryConfig
	revision   atomic.Uint32
	targets    *xsync.MapOf[ids.Key, *targetState]
}

// targetState holds the sequence counter and the outstanding requests of one
// target. mu is held while a sequence number is allocated, so numbers are
// handed out in the order the requests are encoded.
type targetState struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]*request
	lost    *uint64 // first sequence number that timed out
}

type request struct {
	key       ids.Key
	seq       uint64
	kind      common.Kind
	data      []byte
	state     atomic.Uint32
	responses chan common.Message
	errs      chan attemptError
}

type attemptError struct {
	attempt int
	err     error
}

// NewSequencer creates a sequencer for one shard. Requests are encoded at
// abi.Oldest() until SetRevision is called. Responses the transport reports
// as late are matched like all others.
func NewSequencer(
	shardId uint64,
	replyTo common.Address,
	retry common.RetryConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) *Sequencer {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	s := &Sequencer{
		shardId:    shardId,
		replyTo:    replyTo,
		transport:  transport,
		serializer: serializer,
		retry:      retry,
		targets:    xsync.NewMapOf[ids.Key, *targetState](),
	}
	s.revision.Store(uint32(abi.Oldest()))
	transport.OnLateResponse(func(shardId uint64, resp []byte) {
		if shardId == s.shardId {
			s.receive(resp)
		}
	})
	return s
}

// ReplyTo returns the address responses are sent back to.
func (s *Sequencer) ReplyTo() common.Address {
	return s.replyTo
}

// Revision returns the revision requests are encoded at.
func (s *Sequencer) Revision() abi.Revision {
	return abi.Revision(s.revision.Load())
}

// SetRevision changes the revision of all requests encoded afterwards.
func (s *Sequencer) SetRevision(r abi.Revision) {
	s.revision.Store(uint32(r))
}

// Outstanding returns the number of unresolved requests.
func (s *Sequencer) Outstanding() int {
	n := 0
	s.targets.Range(func(_ ids.Key, t *targetState) bool {
		t.mu.Lock()
		n += len(t.pending)
		t.mu.Unlock()
		return true
	})
	return n
}

// Forget drops the sequencing state of a target that will not be used again.
func (s *Sequencer) Forget(key ids.Key) {
	s.targets.Compute(key, func(t *targetState, loaded bool) (*targetState, bool) {
		if !loaded {
			return nil, true
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		return t, len(t.pending) == 0
	})
}

// Invoke sends the request built by build and waits for its response.
//
// build receives the sequence number allocated for the request and must
// return a request for key carrying it. The request is downgraded to the
// current revision before it is encoded; if that is impossible no sequence
// number is consumed and the error wraps common.ErrUnsupportedDowngrade.
//
// A failure response is returned as *common.RequestError. CauseOutOfOrder is
// retried like a lost response. When the retry budget is exhausted the error
// is a *TimeoutError.
//
// A request that ends without a response leaves the target behind: later
// requests to it fail with ErrTargetLost unless they end the target.
func (s *Sequencer) Invoke(ctx context.Context, key ids.Key, build func(seq uint64) common.Message) (common.Message, error) {
	r, err := s.register(key, build)
	if err != nil {
		return nil, err
	}
	defer s.resolve(r)
	common.CountRequest("client", r.kind)

	// transmissions of earlier attempts stay active until the request resolves
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var last error
	for attempt := 1; ; attempt++ {
		go s.transmit(reqCtx, r, attempt)

		resp, err := s.await(ctx, r, attempt)
		switch {
		case err == nil:
			cause, failed := common.FailureCause(resp)
			if !failed {
				r.setState(StateAcknowledged)
				return resp, nil
			}
			reqErr := &common.RequestError{Kind: r.kind, Cause: cause}
			if cause.Code != common.CauseOutOfOrder {
				r.setState(StateAcknowledged)
				return nil, reqErr
			}
			last = reqErr

		case ctx.Err() != nil, errors.Is(err, errEmptyResponse), errors.Is(err, transport.ErrClosed):
			r.setState(StateFailed)
			s.markLost(r)
			return nil, errors.Wrapf(err, "request %d to %s", r.seq, r.key)

		default:
			last = err
		}

		if attempt >= s.retry.MaxAttempts {
			r.setState(StateFailed)
			common.CountTimeout(r.kind)
			access.Warningf("Giving up %s %d to %s after %d attempts: %v", r.kind, r.seq, r.key, attempt, last)
			s.markLost(r)
			return nil, &TimeoutError{Target: r.key, Sequence: r.seq, Attempts: attempt, Last: last}
		}

		r.setState(StateRetrying)
		common.CountRetry(r.kind)
		access.Debugf("Retrying %s %d to %s (attempt %d): %v", r.kind, r.seq, r.key, attempt+1, last)
		if err := sleep(ctx, nextBackoffDelay(s.retry.Backoff, attempt)); err != nil {
			r.setState(StateFailed)
			s.markLost(r)
			return nil, errors.Wrapf(err, "request %d to %s", r.seq, r.key)
		}
	}
}

// Deliver matches a response to its outstanding request. It returns false and
// counts the response as stale if no unresolved request is waiting for it.
func (s *Sequencer) Deliver(resp common.Message) bool {
	if resp.Kind().IsRequest() || resp.Reply() != s.replyTo {
		return s.stale(resp, "not addressed to this frontend")
	}
	t, ok := s.targets.Load(resp.Key())
	if !ok {
		return s.stale(resp, "unknown target")
	}
	t.mu.Lock()
	r, ok := t.pending[resp.Seq()]
	t.mu.Unlock()
	if !ok || r.State().Resolved() {
		return s.stale(resp, "no outstanding request")
	}

	select {
	case r.responses <- resp:
		return true
	default:
		return s.stale(resp, "already answered")
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// register allocates the sequence number and encodes the request.
func (s *Sequencer) register(key ids.Key, build func(seq uint64) common.Message) (*request, error) {
	t, _ := s.targets.LoadOrCompute(key, func() *targetState {
		return &targetState{pending: make(map[uint64]*request)}
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	msg := build(t.next)
	if t.lost != nil && !msg.Kind().EndsTarget() {
		return nil, errors.Wrapf(ErrTargetLost, "send %s (sequence %d was lost)", common.Describe(msg), *t.lost)
	}
	if msg.Key() != key || msg.Seq() != t.next || msg.Reply() != s.replyTo {
		return nil, errors.AssertionFailedf("request %s does not match target %s sequence %d", common.Describe(msg), key, t.next)
	}
	if !msg.Kind().IsRequest() {
		return nil, errors.AssertionFailedf("%s is not a request", msg.Kind())
	}

	clone, err := msg.CloneAsVersion(s.Revision())
	if err != nil {
		if errors.Is(err, common.ErrUnsupportedDowngrade) {
			common.CountDowngradeFailure(msg.Kind())
		}
		return nil, errors.Wrapf(err, "send %s", common.Describe(msg))
	}
	data, err := s.serializer.Serialize(clone)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", common.Describe(clone))
	}

	r := &request{
		key:       key,
		seq:       t.next,
		kind:      msg.Kind(),
		data:      data,
		responses: make(chan common.Message, 1),
		errs:      make(chan attemptError, s.retry.MaxAttempts),
	}
	t.pending[r.seq] = r
	t.next++
	return r, nil
}

// markLost records that the backend may never have seen r. Client targets
// resynchronize on the next connect and are not marked.
func (s *Sequencer) markLost(r *request) {
	if r.key.Scope == ids.ScopeClient {
		return
	}
	if t, ok := s.targets.Load(r.key); ok {
		t.mu.Lock()
		if t.lost == nil {
			seq := r.seq
			t.lost = &seq
		}
		t.mu.Unlock()
	}
}

// resolve removes a request from the outstanding requests of its target.
func (s *Sequencer) resolve(r *request) {
	if t, ok := s.targets.Load(r.key); ok {
		t.mu.Lock()
		delete(t.pending, r.seq)
		t.mu.Unlock()
	}
}

// transmit sends one attempt and delivers its response.
func (s *Sequencer) transmit(ctx context.Context, r *request, attempt int) {
	raw, err := s.transport.Send(ctx, s.shardId, r.data)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			r.fail(attempt, err)
		}
	case len(raw) == 0:
		r.fail(attempt, errEmptyResponse)
	default:
		if err := s.receive(raw); err != nil {
			r.fail(attempt, err)
		}
	}
}

// receive decodes a response and delivers it.
func (s *Sequencer) receive(raw []byte) error {
	resp, err := s.serializer.Deserialize(raw)
	if err != nil {
		Logger.Warningf("Dropping undecodable response: %v", err)
		return errors.Wrap(err, "decode response")
	}
	s.Deliver(resp)
	return nil
}

// await waits for the response of attempt, its failure or the attempt timeout.
// Failures of earlier attempts are ignored, their responses are not.
func (s *Sequencer) await(ctx context.Context, r *request, attempt int) (common.Message, error) {
	var timeout <-chan struct{}
	if s.retry.AttemptTimeout > 0 {
		attemptCtx, cancel := context.WithTimeout(ctx, s.retry.AttemptTimeout)
		defer cancel()
		timeout = attemptCtx.Done()
	}

	for {
		select {
		case resp := <-r.responses:
			return resp, nil
		case failure := <-r.errs:
			if failure.attempt == attempt {
				return nil, failure.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, errAttemptTimeout
		}
	}
}

func (s *Sequencer) stale(resp common.Message, reason string) bool {
	common.CountStaleResponse()
	access.Debugf("Discarding stale %s: %s", common.Describe(resp), reason)
	return false
}

func (r *request) State() RequestState {
	return RequestState(r.state.Load())
}

func (r *request) setState(state RequestState) {
	r.state.Store(uint32(state))
}

func (r *request) fail(attempt int, err error) {
	select {
	case r.errs <- attemptError{attempt: attempt, err: err}:
	default:
	}
}

package client

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ValentinKolb/dTX/lib/ids"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc/client")
	// access logs sequencing and negotiation events
	access = logger.GetLogger("access")
)

// invoke is a helper function used by the frontend types to send requests.
// It returns the response if it has the expected type and an error if the
// backend answered with a failure or with an unexpected message.
func invoke[T common.Message](ctx context.Context, s *Sequencer, key ids.Key, build func(seq uint64) common.Message) (T, error) {
	var zero T
	resp, err := s.Invoke(ctx, key, build)
	if err != nil {
		return zero, err
	}

	// Check if the type of the response is the expected type
	out, ok := resp.(T)
	if !ok {
		return zero, errors.Newf("unexpected response %s", common.Describe(resp))
	}
	return out, nil
}

// header builds the header of a request sent through s.
func header[T ids.Target](s *Sequencer, target T, seq uint64) common.Header[T] {
	return common.NewHeader(target, seq, s.ReplyTo())
}

// nextBackoffDelay returns the delay before attempt+1, attempt being the
// number of attempts already made (1-based). The jitter spreads the delay by
// up to Jitter of its value in both directions.
func nextBackoffDelay(cfg common.BackoffConfig, attempt int) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter > 0 {
		jitter := math.Min(cfg.Jitter, 1)
		delay *= 1 - jitter + 2*jitter*rand.Float64()
	}
	return time.Duration(delay)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

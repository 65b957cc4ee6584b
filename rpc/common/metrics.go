package common

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Protocol Metrics
// --------------------------------------------------------------------------

// Metric names. Counters are created lazily on first use.
const (
	metricRequests            = `dtx_requests_total{side=%q,kind=%q}`
	metricRetries             = `dtx_retries_total{kind=%q}`
	metricTimeouts            = `dtx_timeouts_total{kind=%q}`
	metricStaleResponses      = `dtx_stale_responses_total`
	metricDuplicatesReplayed  = `dtx_duplicates_replayed_total`
	metricSequenceViolations  = `dtx_sequence_violations_total`
	metricOutOfOrderRejected  = `dtx_out_of_order_rejected_total`
	metricDowngradeFailures   = `dtx_downgrade_failures_total{kind=%q}`
	metricNegotiationFailures = `dtx_negotiation_failures_total`
	metricCommitDuration      = `dtx_commit_duration_seconds`
)

// CountRequest counts a request sent ("client") or handled ("server").
func CountRequest(side string, kind Kind) {
	metrics.GetOrCreateCounter(fmt.Sprintf(metricRequests, side, kind)).Inc()
}

// CountRetry counts a retransmission.
func CountRetry(kind Kind) {
	metrics.GetOrCreateCounter(fmt.Sprintf(metricRetries, kind)).Inc()
}

// CountTimeout counts a request whose retry budget is exhausted.
func CountTimeout(kind Kind) {
	metrics.GetOrCreateCounter(fmt.Sprintf(metricTimeouts, kind)).Inc()
}

// CountStaleResponse counts a discarded response.
func CountStaleResponse() {
	metrics.GetOrCreateCounter(metricStaleResponses).Inc()
}

// CountDuplicateReplayed counts a retried request answered from memory.
func CountDuplicateReplayed() {
	metrics.GetOrCreateCounter(metricDuplicatesReplayed).Inc()
}

// CountSequenceViolation counts a rejected sequence violation.
func CountSequenceViolation() {
	metrics.GetOrCreateCounter(metricSequenceViolations).Inc()
}

// CountOutOfOrderRejected counts an early request that could not be buffered.
func CountOutOfOrderRejected() {
	metrics.GetOrCreateCounter(metricOutOfOrderRejected).Inc()
}

// CountDowngradeFailure counts a send that failed with ErrUnsupportedDowngrade.
func CountDowngradeFailure(kind Kind) {
	metrics.GetOrCreateCounter(fmt.Sprintf(metricDowngradeFailures, kind)).Inc()
}

// CountNegotiationFailure counts a peer without a common revision.
func CountNegotiationFailure() {
	metrics.GetOrCreateCounter(metricNegotiationFailures).Inc()
}

// ObserveCommit records the duration of a store commit.
func ObserveCommit(start time.Time) {
	metrics.GetOrCreateHistogram(metricCommitDuration).Update(time.Since(start).Seconds())
}

// WriteMetrics writes all metrics in Prometheus text format.
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, true)
}

// CounterValue returns the current value of a counter, for tests and the CLI.
func CounterValue(name string) uint64 {
	return metrics.GetOrCreateCounter(name).Get()
}

// StaleResponses returns the number of discarded responses.
func StaleResponses() uint64 { return CounterValue(metricStaleResponses) }

// DuplicatesReplayed returns the number of requests answered from memory.
func DuplicatesReplayed() uint64 { return CounterValue(metricDuplicatesReplayed) }

// SequenceViolations returns the number of rejected sequence violations.
func SequenceViolations() uint64 { return CounterValue(metricSequenceViolations) }

package dicomcli

import (
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// fixedSequenceBackOff implements backoff.BackOff with a fixed 4s/16s/32s
// sequence rather than an exponential curve, so cenkalti/backoff's
// ExponentialBackOff doesn't fit. It implements the library's BackOff
// interface and only supplies the delays; the attempt loop itself lives in
// retryFindStudies and retryMoveOrGet below, which sleep for each delay.
type fixedSequenceBackOff struct {
	delays []time.Duration
	idx    int
}

func newFixedSequenceBackOff() *fixedSequenceBackOff {
	return &fixedSequenceBackOff{delays: []time.Duration{4 * time.Second, 16 * time.Second, 32 * time.Second}}
}

func (f *fixedSequenceBackOff) NextBackOff() time.Duration {
	if f.idx >= len(f.delays) {
		return backoff.Stop
	}
	d := f.delays[f.idx]
	f.idx++
	return d
}

// maxAttempts is 1 initial call plus 3 retries.
const maxAttempts = 4

// retryFindStudies retries op on CommandError or ParseError, re-raising the
// last error once attempts are exhausted. Before each retry a single line
// is logged without re-emitting the failing output.
func retryFindStudies(op func(attempt int) ([]map[string]string, error)) ([]map[string]string, error) {
	bo := newFixedSequenceBackOff()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}
		delay := bo.NextBackOff()
		fmt.Fprintf(os.Stderr, "dicomcli: find_studies attempt %d failed, retrying in %s\n", attempt, delay)
		time.Sleep(delay)
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	switch err.(type) {
	case *CommandError, *ParseError:
		return true
	default:
		return false
	}
}

// retryMoveOrGet retries op while it returns a non-success RetrieveResult.
// On exhaustion it returns the last result so the caller can reason about
// the failure shape.
func retryMoveOrGet(name string, op func(attempt int) (RetrieveResult, error)) (RetrieveResult, error) {
	bo := newFixedSequenceBackOff()
	var last RetrieveResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(attempt)
		if err != nil {
			return result, err
		}
		last = result
		if result.Success {
			return result, nil
		}
		if attempt == maxAttempts {
			break
		}
		delay := bo.NextBackOff()
		fmt.Fprintf(os.Stderr, "dicomcli: %s attempt %d did not succeed, retrying in %s\n", name, attempt, delay)
		time.Sleep(delay)
	}
	return last, nil
}

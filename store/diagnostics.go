package store

import "github.com/IvanBrykalov/doccache/cache"

// InvalidateResult classifies what Invalidate did, ordered by severity.
type InvalidateResult int

const (
	// Miss: nothing was cached or in flight.
	Miss InvalidateResult = iota
	// Removed: cached entries were evicted.
	Removed
	// CanceledClean: an in-flight fetch was intercepted and will be repeated.
	CanceledClean
	// CanceledMultiple: the in-flight fetch had already been intercepted.
	CanceledMultiple
	// CancelFailed: the fetch had already published; the entries were
	// evicted directly.
	CancelFailed
)

// String returns a stable label for the result.
func (r InvalidateResult) String() string {
	switch r {
	case Miss:
		return "miss"
	case Removed:
		return "removed"
	case CanceledClean:
		return "canceled_clean"
	case CanceledMultiple:
		return "canceled_multiple"
	case CancelFailed:
		return "cancel_failed"
	default:
		return "unknown"
	}
}

func worse(a, b InvalidateResult) InvalidateResult {
	if b > a {
		return b
	}
	return a
}

// Diagnostics receives observational events from a Store.
// Implementations MUST be cheap and non-blocking: the Store calls them on
// hot paths.
type Diagnostics interface {
	// Entity map hit.
	Hit()
	// Entity map miss that went to a Loader.
	Miss()
	// Miss answered by a cached absence flag.
	NegativeHit()
	// One backing Fetch call started.
	Fetch()
	// A fetch was repeated because of an invalidation.
	Retry()
	// A backing Fetch call failed.
	FetchError()
	// One Invalidate call finished with result.
	Invalidation(result InvalidateResult)
	// The existence capacity was raised to the entity capacity.
	CapacityClamped(requested, clamped int)
}

// MapMetricsProvider is implemented by Diagnostics that also want the
// per-map signals of the two bounded maps ("entity" and "existence").
type MapMetricsProvider interface {
	MapMetrics(name string) cache.Metrics
}

// NopDiagnostics is the default no-op.
type NopDiagnostics struct{}

func (NopDiagnostics) Hit()                          {}
func (NopDiagnostics) Miss()                         {}
func (NopDiagnostics) NegativeHit()                  {}
func (NopDiagnostics) Fetch()                        {}
func (NopDiagnostics) Retry()                        {}
func (NopDiagnostics) FetchError()                   {}
func (NopDiagnostics) Invalidation(InvalidateResult) {}
func (NopDiagnostics) CapacityClamped(int, int)      {}

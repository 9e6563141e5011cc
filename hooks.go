package datasync

// Hooks are lightweight callbacks for high-signal events. Implementations
// MUST be cheap and non-blocking; the dispatcher calls them on hot paths.
// Wrap with hooks/async for fan-out to slower sinks.
type Hooks interface {
	// A failed fetch was answered from an expired cache entry.
	StaleServed(id string, cause error)

	// A pending operation failed terminally and was dropped from the queue.
	// kind ∈ {"create", "update", "delete"}.
	PendingDropped(id, kind string, cause error)

	// A query-cache frame was deleted on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}.
	QuerySelfHeal(storageKey, reason string)

	// The query-cache provider returned ok=false on Set (backpressure).
	ProviderSetRejected(storageKey string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) StaleServed(string, error)            {}
func (NopHooks) PendingDropped(string, string, error) {}
func (NopHooks) QuerySelfHeal(string, string)         {}
func (NopHooks) ProviderSetRejected(string)           {}

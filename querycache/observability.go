package querycache

const (
	// LookupsMetric counts Get calls by query and result (hit, miss, stale).
	LookupsMetric = "querycache_lookups_total"

	// FetchDurationMetric records how long fetches take, by query and status.
	FetchDurationMetric = "querycache_fetch_duration_seconds"

	// InvalidationsMetric counts invalidated tags.
	InvalidationsMetric = "querycache_invalidations_total"

	// RefetchesMetric counts fetches triggered by an invalidation, by query and status.
	RefetchesMetric = "querycache_refetches_total"

	// EntriesMetric is the number of cached entries.
	EntriesMetric = "querycache_entries"

	// SpanNameFetch is the span around one fetch.
	SpanNameFetch = "querycache.fetch"

	// SpanNameMutation is the span around one mutation including its invalidation.
	SpanNameMutation = "querycache.mutation"

	LogMsgFetchFailed      = "query cache fetch failed"
	LogMsgFetchSuperseded  = "query cache fetch result discarded after invalidation"
	LogMsgInvalidated      = "query cache tags invalidated"
	LogMsgRefetchFailed    = "query cache refetch after invalidation failed"
	LogMsgMutationFailed   = "query cache mutation failed"
	LogMsgMutationComplete = "query cache mutation completed"

	LogAttrQuery     = "query"
	LogAttrMutation  = "mutation"
	LogAttrTag       = "tag"
	LogAttrTags      = "tags"
	LogAttrResult    = "result"
	LogAttrRefetches = "refetches"

	lookupHit   = "hit"
	lookupMiss  = "miss"
	lookupStale = "stale"
)

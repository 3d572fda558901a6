package constants

import "time"

// TraceSource identifies where a reconciled trace came from.
type TraceSource string

const (
	// SourceRemote indicates the trace was built from the backend history list.
	SourceRemote TraceSource = "remote"
	// SourceCache indicates the backend history was empty and the local cache supplied the points.
	SourceCache TraceSource = "cache"
	// SourceNone indicates the cycle produced no points from either source.
	SourceNone TraceSource = "none"
)

const (
	// CacheKeyPrefix namespaces per-device entries in the cache backends.
	CacheKeyPrefix = "trace-cache-"

	// CacheSchemaVersion is stamped into every cache entry. Entries
	// written under a different major version are treated as a miss.
	CacheSchemaVersion = "1.0.0"

	// DefaultFetchTimeout bounds a single remote request.
	DefaultFetchTimeout = 10 * time.Second

	// MQTTDisconnectQuiesce is how long the MQTT client may flush
	// in-flight messages on shutdown, in milliseconds.
	MQTTDisconnectQuiesce = 250
)

// AgentVersion is the version reported by the health endpoint and
// stamped into cache entries.
const AgentVersion = "1.2.0"

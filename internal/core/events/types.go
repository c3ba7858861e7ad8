// Package events provides the notifier type constants.
package events

// Type represents the type of notifier.
type Type string

const (
	// TypeNone disables invalidation broadcasts.
	TypeNone Type = "none"
	// TypeRedis uses Redis pub/sub.
	TypeRedis Type = "redis"
	// TypeNATS uses a NATS subject.
	TypeNATS Type = "nats"
)

// DefaultChannel is the channel or subject invalidations travel on.
const DefaultChannel = "session.invalidate"

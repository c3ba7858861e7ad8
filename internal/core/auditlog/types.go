// Package auditlog provides the audit backend type constants.
package auditlog

// Type represents the type of audit backend.
type Type string

const (
	// TypeNone discards events.
	TypeNone Type = "none"
	// TypeMongoDB stores events in MongoDB.
	TypeMongoDB Type = "mongodb"
)

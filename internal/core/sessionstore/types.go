// Package sessionstore provides the store type constants.
package sessionstore

// Type represents the type of session store.
type Type string

const (
	// TypeMemory keeps sessions in process memory. Replica-local.
	TypeMemory Type = "memory"
	// TypeRedis keeps sessions in Redis, shared by every replica.
	TypeRedis Type = "redis"
	// TypeDual reads and writes Redis while mirroring into memory,
	// for migrating from TypeMemory to TypeRedis.
	TypeDual Type = "dual"
)

// Valid reports whether t names a known store type.
func (t Type) Valid() bool {
	switch t {
	case TypeMemory, TypeRedis, TypeDual:
		return true
	}
	return false
}

// Shared reports whether sessions written by one replica are visible to others.
func (t Type) Shared() bool {
	return t == TypeRedis || t == TypeDual
}

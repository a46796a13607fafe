/**
 * @description
 * This file defines the `Store` interface, the contract for the shared
 * key-value store that hosts packets, share lists, claim records and claim
 * locks. By defining an interface, the claim coordinator stays decoupled
 * from the concrete store implementation (Redis), making the concurrency
 * logic testable against an in-memory fake.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrKeyNotFound is returned by Get when the key is absent or expired.
	ErrKeyNotFound = errors.New("key not found")
	// ErrUnavailable is returned when the store cannot be reached. The
	// atomic script either ran to completion or not at all, so callers may
	// safely retry the whole operation.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the adapter over the shared key-value store. RunAtomic executes
// a server-side script as one indivisible unit; no other operation may
// observe an intermediate state. Every mutation of packet state goes
// through RunAtomic.
type Store interface {
	PutWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	RunAtomic(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)

	// AcquireLock sets a time-bounded mutual-exclusion marker. It returns
	// false without error when the lock is already held.
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// ReleaseLock deletes the marker only if the token still matches the
	// current holder, so an expired holder can never release a lock that
	// has since been re-acquired.
	ReleaseLock(ctx context.Context, key, token string) error
}

// Keys builds the store key layout for one configured prefix. Packet
// metadata and the share list share one expiry; claim records are stamped
// with the packet's remaining TTL so all traces of an allocation vanish
// together.
type Keys struct {
	prefix string
}

// NewKeys returns a key builder for the given prefix ("packet" by default).
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = "packet"
	}
	return Keys{prefix: prefix}
}

// Packet returns the key holding the packet metadata document.
func (k Keys) Packet(packetID string) string {
	return fmt.Sprintf("%s:%s", k.prefix, packetID)
}

// Shares returns the key holding the pre-computed share list.
func (k Keys) Shares(packetID string) string {
	return fmt.Sprintf("%s:%s:shares", k.prefix, packetID)
}

// Claim returns the key holding the claim record for one claimant.
func (k Keys) Claim(packetID, claimantID string) string {
	return fmt.Sprintf("%s:claim:%s:%s", k.prefix, packetID, claimantID)
}

// Lock returns the key of the per-(packet, claimant) claim lock.
func (k Keys) Lock(packetID, claimantID string) string {
	return fmt.Sprintf("%s:lock:%s:%s", k.prefix, packetID, claimantID)
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/luckyshare/packet-service/internal/domain"
	"github.com/luckyshare/packet-service/internal/store"
	"github.com/luckyshare/packet-service/pkg/rabbitmq"
)

// fakeStore is an in-memory Store whose RunAtomic emulates the service's
// store-side scripts under one mutex, preserving the all-or-nothing,
// no-interleaving semantics the real store provides. Concurrency tests run
// the claim coordinator against it with many goroutines.
type fakeStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	expiry  map[string]time.Time
	locks   map[string]string
	leases  map[string]time.Time
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data:   make(map[string][]byte),
		expiry: make(map[string]time.Time),
		locks:  make(map[string]string),
		leases: make(map[string]time.Time),
	}
}

func (f *fakeStore) PutWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return store.ErrUnavailable
	}
	f.data[key] = value
	f.expiry[key] = time.Now().Add(ttl)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, store.ErrUnavailable
	}
	return f.getLocked(key)
}

func (f *fakeStore) getLocked(key string) ([]byte, error) {
	value, ok := f.data[key]
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	if deadline, has := f.expiry[key]; has && time.Now().After(deadline) {
		delete(f.data, key)
		delete(f.expiry, key)
		return nil, store.ErrKeyNotFound
	}
	return value, nil
}

func (f *fakeStore) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, store.ErrUnavailable
	}
	if _, held := f.locks[key]; held && time.Now().Before(f.leases[key]) {
		return false, nil
	}
	f.locks[key] = token
	f.leases[key] = time.Now().Add(ttl)
	return true, nil
}

func (f *fakeStore) ReleaseLock(ctx context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return store.ErrUnavailable
	}
	if f.locks[key] == token {
		delete(f.locks, key)
		delete(f.leases, key)
	}
	return nil
}

func (f *fakeStore) RunAtomic(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, store.ErrUnavailable
	}
	switch script {
	case createPacketScript:
		return f.runCreateLocked(keys, args)
	case claimPacketScript:
		return f.runClaimLocked(keys, args)
	default:
		return nil, fmt.Errorf("fake store: unknown script")
	}
}

func (f *fakeStore) runCreateLocked(keys []string, args []interface{}) (interface{}, error) {
	packetJSON := args[0].([]byte)
	sharesJSON := args[1].([]byte)
	ttl := time.Duration(args[2].(int64)) * time.Second
	deadline := time.Now().Add(ttl)

	f.data[keys[1]] = sharesJSON
	f.expiry[keys[1]] = deadline
	f.data[keys[0]] = packetJSON
	f.expiry[keys[0]] = deadline
	return int64(1), nil
}

func (f *fakeStore) runClaimLocked(keys []string, args []interface{}) (interface{}, error) {
	packetKey, claimKey, sharesKey := keys[0], keys[1], keys[2]
	claimantID := args[0].(string)
	now := args[1].(int64)
	recordID := args[2].(string)

	packetJSON, err := f.getLocked(packetKey)
	if err != nil {
		return []interface{}{"PACKET_NOT_FOUND"}, nil
	}
	if _, err := f.getLocked(claimKey); err == nil {
		return []interface{}{"ALREADY_CLAIMED"}, nil
	}

	var packet domain.Packet
	if err := json.Unmarshal(packetJSON, &packet); err != nil {
		return nil, err
	}
	if packet.RemainCount <= 0 {
		return []interface{}{"PACKET_EXHAUSTED"}, nil
	}
	if now > packet.ExpiresAt {
		return []interface{}{"PACKET_EXPIRED"}, nil
	}

	sharesJSON, err := f.getLocked(sharesKey)
	if err != nil {
		return []interface{}{"SHARES_NOT_FOUND"}, nil
	}
	var shares []int64
	if err := json.Unmarshal(sharesJSON, &shares); err != nil {
		return nil, err
	}

	index := packet.TotalCount - packet.RemainCount + 1
	if index < 1 || index > len(shares) {
		return []interface{}{"SHARES_NOT_FOUND"}, nil
	}
	amount := shares[index-1]

	packet.RemainCount--
	packet.RemainAmount -= amount

	updated, err := json.Marshal(packet)
	if err != nil {
		return nil, err
	}
	record, err := json.Marshal(domain.ClaimRecord{
		ID:         recordID,
		PacketID:   packet.ID,
		ClaimantID: claimantID,
		Amount:     amount,
		ClaimedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	f.data[packetKey] = updated
	f.data[claimKey] = record
	f.expiry[claimKey] = f.expiry[packetKey]

	return []interface{}{"OK", amount, int64(packet.RemainCount), packet.RemainAmount}, nil
}

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	mu      sync.Mutex
	created []domain.PacketCreatedEvent
	claimed []domain.PacketClaimedEvent
	err     error
}

var _ rabbitmq.Publisher = (*capturingPublisher)(nil)

func (p *capturingPublisher) PublishPacketCreated(ctx context.Context, event domain.PacketCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, event)
	return p.err
}

func (p *capturingPublisher) PublishPacketClaimed(ctx context.Context, event domain.PacketClaimedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claimed = append(p.claimed, event)
	return p.err
}

func (p *capturingPublisher) Close() {}

// stubRateLimiter returns a fixed attempt count.
type stubRateLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (s *stubRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return s.count, s.retryAfter, s.err
}

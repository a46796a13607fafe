/**
 * @description
 * This file contains the core business logic for the packet-service. The
 * `Service` struct implements the packet lifecycle (create, claim, read)
 * on top of the shared store adapter.
 *
 * Key features:
 * - Packet creation pre-computes the share list once and persists packet
 *   and shares atomically under one TTL.
 * - The claim path combines a per-(packet, claimant) lease lock with one
 *   atomic store-side transaction. The lock throttles duplicate in-flight
 *   attempts; the transaction's existence check is the source of truth for
 *   the exactly-once guarantee.
 * - Successful creates and claims publish events to RabbitMQ for
 *   asynchronous processing (archival, notifications).
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For packet, record and lock-token ids.
 * - internal/domain, internal/store: Domain models and store access.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/luckyshare/packet-service/internal/domain"
	"github.com/luckyshare/packet-service/internal/store"
	"github.com/luckyshare/packet-service/pkg/rabbitmq"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrPacketNotFound  = errors.New("packet not found")
	ErrSharesNotFound  = errors.New("share list not found")
	ErrAlreadyClaimed  = errors.New("packet already claimed by this claimant")
	ErrPacketExhausted = errors.New("packet has no shares left")
	ErrPacketExpired   = errors.New("packet has expired")
	ErrClaimInProgress = errors.New("a claim for this packet is already in progress")
	ErrClaimNotFound   = errors.New("claim record not found")
)

// RateLimitedError reports that a claimant exceeded the configured claim
// rate and should retry after the window resets.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("claim rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

// RateLimiter is the contract for the optional distributed claim throttle.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

const (
	defaultLockTTL       = 10 * time.Second
	defaultExpireMinutes = 24 * 60
	defaultMaxCount      = 1000
	lockReleaseTimeout   = 5 * time.Second
)

// createPacketScript persists the share list and the packet document as one
// indivisible unit, both under the same expiry, shares first so a packet is
// never observable without its shares. KEYS: packet, shares. ARGV: packet
// JSON, shares JSON, TTL seconds.
const createPacketScript = `
redis.call('SET', KEYS[2], ARGV[2], 'EX', ARGV[3])
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[3])
return 1
`

// claimPacketScript is the atomic claim transaction. It validates the
// packet, consumes the share at index totalCount-remainCount+1, decrements
// the remainders and writes the claim record, all as one unit. The packet
// rewrite and the claim record inherit the packet key's remaining TTL so
// every trace of the allocation expires together.
//
// KEYS: packet, claim record, shares. ARGV: claimant id, now (unix
// seconds), record id. Reply: {'OK', amount, remainCount, remainAmount}
// or a single-element failure code.
const claimPacketScript = `
local packetJson = redis.call('GET', KEYS[1])
if not packetJson then
  return {'PACKET_NOT_FOUND'}
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {'ALREADY_CLAIMED'}
end
local packet = cjson.decode(packetJson)
if packet.remain_count <= 0 then
  return {'PACKET_EXHAUSTED'}
end
local now = tonumber(ARGV[2])
if now > packet.expires_at then
  return {'PACKET_EXPIRED'}
end
local sharesJson = redis.call('GET', KEYS[3])
if not sharesJson then
  return {'SHARES_NOT_FOUND'}
end
local shares = cjson.decode(sharesJson)
local index = packet.total_count - packet.remain_count + 1
local amount = shares[index]
if amount == nil then
  return {'SHARES_NOT_FOUND'}
end
packet.remain_count = packet.remain_count - 1
packet.remain_amount = packet.remain_amount - amount
local record = cjson.encode({
  id = ARGV[3],
  packet_id = packet.id,
  claimant_id = ARGV[1],
  amount = amount,
  claimed_at = now
})
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  redis.call('SET', KEYS[1], cjson.encode(packet), 'PX', ttl)
  redis.call('SET', KEYS[2], record, 'PX', ttl)
else
  redis.call('SET', KEYS[1], cjson.encode(packet))
  redis.call('SET', KEYS[2], record)
end
return {'OK', amount, packet.remain_count, packet.remain_amount}
`

// Service provides the core business logic for packets and claims.
type Service struct {
	store  store.Store
	keys   store.Keys
	events rabbitmq.Publisher

	lockTTL       time.Duration
	expireMinutes int
	maxCount      int

	limiter         RateLimiter
	claimsPerMinute int

	newRand func() *rand.Rand
}

// NewService creates a new packet service instance. The events publisher
// may be nil, in which case no events are emitted.
func NewService(st store.Store, keys store.Keys, events rabbitmq.Publisher) *Service {
	return &Service{
		store:         st,
		keys:          keys,
		events:        events,
		lockTTL:       defaultLockTTL,
		expireMinutes: defaultExpireMinutes,
		maxCount:      defaultMaxCount,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// ConfigureLimits overrides the default expiry, lock lease and packet size
// limits. Non-positive values keep the current setting.
func (s *Service) ConfigureLimits(defaultExpireMins, lockTTLSeconds, maxCount int) {
	if defaultExpireMins > 0 {
		s.expireMinutes = defaultExpireMins
	}
	if lockTTLSeconds > 0 {
		s.lockTTL = time.Duration(lockTTLSeconds) * time.Second
	}
	if maxCount > 0 {
		s.maxCount = maxCount
	}
}

// SetClaimRateLimiter enables the distributed per-claimant claim throttle.
func (s *Service) SetClaimRateLimiter(limiter RateLimiter, claimsPerMinute int) {
	s.limiter = limiter
	s.claimsPerMinute = claimsPerMinute
}

// SetRandSource overrides the random source factory used by the allocator,
// allowing deterministic share lists under a fixed seed.
func (s *Service) SetRandSource(fn func() *rand.Rand) {
	if fn != nil {
		s.newRand = fn
	}
}

// CreatePacket validates the request, pre-computes the share list and
// persists packet and shares atomically under one TTL. Claims never
// recompute shares; they only consume the persisted list by index.
func (s *Service) CreatePacket(ctx context.Context, creatorID string, totalAmount int64, totalCount, expireMinutes int) (*domain.CreatePacketResponse, error) {
	if creatorID == "" {
		return nil, fmt.Errorf("%w: creator id is required", ErrInvalidArgument)
	}
	if totalAmount <= 0 || totalCount <= 0 {
		return nil, fmt.Errorf("%w: amount and count must be positive", ErrInvalidArgument)
	}
	if totalAmount < int64(totalCount) {
		return nil, fmt.Errorf("%w: amount %d cannot cover %d shares of at least 1", ErrInvalidArgument, totalAmount, totalCount)
	}
	if totalCount > s.maxCount {
		return nil, fmt.Errorf("%w: count %d exceeds the maximum of %d", ErrInvalidArgument, totalCount, s.maxCount)
	}
	if expireMinutes <= 0 {
		expireMinutes = s.expireMinutes
	}

	shares, err := SplitAmount(totalAmount, totalCount, s.newRand())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ttl := time.Duration(expireMinutes) * time.Minute
	packet := domain.Packet{
		ID:           uuid.NewString(),
		TotalAmount:  totalAmount,
		TotalCount:   totalCount,
		RemainAmount: totalAmount,
		RemainCount:  totalCount,
		CreatorID:    creatorID,
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(ttl).Unix(),
	}

	packetJSON, err := json.Marshal(packet)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal packet: %w", err)
	}
	sharesJSON, err := json.Marshal(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal share list: %w", err)
	}

	keys := []string{s.keys.Packet(packet.ID), s.keys.Shares(packet.ID)}
	if _, err := s.store.RunAtomic(ctx, createPacketScript, keys, packetJSON, sharesJSON, int64(ttl.Seconds())); err != nil {
		return nil, fmt.Errorf("failed to persist packet: %w", err)
	}

	log.Printf("level=info component=packet msg=\"packet created\" packet_id=%s creator_id=%s total_amount=%d total_count=%d expire_minutes=%d",
		packet.ID, creatorID, totalAmount, totalCount, expireMinutes)

	if s.events != nil {
		event := domain.PacketCreatedEvent{
			PacketID:    packet.ID,
			CreatorID:   creatorID,
			TotalAmount: totalAmount,
			TotalCount:  totalCount,
			ExpiresAt:   time.Unix(packet.ExpiresAt, 0),
			Timestamp:   now,
		}
		if err := s.events.PublishPacketCreated(ctx, event); err != nil {
			log.Printf("level=warn component=packet msg=\"packet created event publish failed\" packet_id=%s err=%v", packet.ID, err)
		}
	}

	return &domain.CreatePacketResponse{
		PacketID:  packet.ID,
		ExpiresAt: time.Unix(packet.ExpiresAt, 0),
	}, nil
}

// ClaimPacket lets one claimant draw exactly one share from a packet.
//
// Protocol: acquire the per-(packet, claimant) lease lock, run the atomic
// claim transaction, release the lock on every exit path. The lock is a
// duplicate-suppression layer; the transaction's claim-record existence
// check is what actually enforces exactly-once.
func (s *Service) ClaimPacket(ctx context.Context, packetID, claimantID string) (*domain.ClaimResult, error) {
	if packetID == "" || claimantID == "" {
		return nil, fmt.Errorf("%w: packet id and claimant id are required", ErrInvalidArgument)
	}

	if s.limiter != nil && s.claimsPerMinute > 0 {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "claim", claimantID, s.claimsPerMinute, time.Minute)
		if err != nil {
			// The throttle is an optimization; never fail a claim because it is down.
			log.Printf("level=warn component=claim msg=\"rate limiter unavailable; continuing\" claimant_id=%s err=%v", claimantID, err)
		} else if count > s.claimsPerMinute {
			return nil, &RateLimitedError{RetryAfterSeconds: retryAfter}
		}
	}

	lockKey := s.keys.Lock(packetID, claimantID)
	lockToken := uuid.NewString()

	acquired, err := s.store.AcquireLock(ctx, lockKey, lockToken, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire claim lock: %w", err)
	}
	if !acquired {
		return nil, ErrClaimInProgress
	}
	defer func() {
		// The release must run even when the request context was cancelled
		// mid-claim; a failed release is tolerable since the lease expires.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
		defer cancel()
		if err := s.store.ReleaseLock(releaseCtx, lockKey, lockToken); err != nil {
			log.Printf("level=warn component=claim msg=\"lock release failed; lease will expire\" packet_id=%s claimant_id=%s err=%v", packetID, claimantID, err)
		}
	}()

	recordID := uuid.NewString()
	now := time.Now()
	keys := []string{s.keys.Packet(packetID), s.keys.Claim(packetID, claimantID), s.keys.Shares(packetID)}

	reply, err := s.store.RunAtomic(ctx, claimPacketScript, keys, claimantID, now.Unix(), recordID)
	if err != nil {
		return nil, fmt.Errorf("claim transaction failed: %w", err)
	}

	amount, remainCount, remainAmount, err := parseClaimReply(reply)
	if err != nil {
		if isClaimOutcome(err) {
			log.Printf("level=info component=claim msg=\"claim rejected\" packet_id=%s claimant_id=%s outcome=%v", packetID, claimantID, err)
		} else {
			log.Printf("level=error component=claim msg=\"claim reply parse failed\" packet_id=%s claimant_id=%s err=%v", packetID, claimantID, err)
		}
		return nil, err
	}

	result := &domain.ClaimResult{
		RecordID:     recordID,
		PacketID:     packetID,
		ClaimantID:   claimantID,
		Amount:       amount,
		RemainCount:  remainCount,
		RemainAmount: remainAmount,
		ClaimedAt:    now,
	}

	log.Printf("level=info component=claim msg=\"claim committed\" packet_id=%s claimant_id=%s amount=%d remain_count=%d remain_amount=%d",
		packetID, claimantID, amount, remainCount, remainAmount)

	if s.events != nil {
		event := domain.PacketClaimedEvent{
			RecordID:     recordID,
			PacketID:     packetID,
			ClaimantID:   claimantID,
			Amount:       amount,
			RemainCount:  remainCount,
			RemainAmount: remainAmount,
			ClaimedAt:    now,
		}
		if err := s.events.PublishPacketClaimed(ctx, event); err != nil {
			log.Printf("level=warn component=claim msg=\"packet claimed event publish failed\" packet_id=%s claimant_id=%s err=%v", packetID, claimantID, err)
		}
	}

	return result, nil
}

// GetPacket returns a snapshot of the packet's current state.
func (s *Service) GetPacket(ctx context.Context, packetID string) (*domain.Packet, error) {
	if packetID == "" {
		return nil, fmt.Errorf("%w: packet id is required", ErrInvalidArgument)
	}
	raw, err := s.store.Get(ctx, s.keys.Packet(packetID))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, ErrPacketNotFound
		}
		return nil, fmt.Errorf("failed to load packet: %w", err)
	}
	var packet domain.Packet
	if err := json.Unmarshal(raw, &packet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal packet %s: %w", packetID, err)
	}
	return &packet, nil
}

// GetClaim returns the claim record for one (packet, claimant) pair.
func (s *Service) GetClaim(ctx context.Context, packetID, claimantID string) (*domain.ClaimRecord, error) {
	if packetID == "" || claimantID == "" {
		return nil, fmt.Errorf("%w: packet id and claimant id are required", ErrInvalidArgument)
	}
	raw, err := s.store.Get(ctx, s.keys.Claim(packetID, claimantID))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, fmt.Errorf("failed to load claim record: %w", err)
	}
	var record domain.ClaimRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal claim record for packet %s: %w", packetID, err)
	}
	return &record, nil
}

// claimFailureCodes maps script failure codes to the service's sentinel
// errors. Every failure out of the atomic transaction maps to exactly one
// named outcome.
var claimFailureCodes = map[string]error{
	"PACKET_NOT_FOUND": ErrPacketNotFound,
	"ALREADY_CLAIMED":  ErrAlreadyClaimed,
	"PACKET_EXHAUSTED": ErrPacketExhausted,
	"PACKET_EXPIRED":   ErrPacketExpired,
	"SHARES_NOT_FOUND": ErrSharesNotFound,
}

func isClaimOutcome(err error) bool {
	for _, outcome := range claimFailureCodes {
		if errors.Is(err, outcome) {
			return true
		}
	}
	return false
}

func parseClaimReply(reply interface{}) (amount int64, remainCount int, remainAmount int64, err error) {
	values, ok := reply.([]interface{})
	if !ok || len(values) == 0 {
		return 0, 0, 0, fmt.Errorf("unexpected claim reply shape: %T", reply)
	}

	status, ok := values[0].(string)
	if !ok {
		return 0, 0, 0, fmt.Errorf("unexpected claim status type: %T", values[0])
	}
	if status != "OK" {
		if outcome, known := claimFailureCodes[status]; known {
			return 0, 0, 0, outcome
		}
		return 0, 0, 0, fmt.Errorf("unknown claim failure code %q", status)
	}
	if len(values) != 4 {
		return 0, 0, 0, fmt.Errorf("unexpected claim reply length: %d", len(values))
	}

	amount, ok = values[1].(int64)
	if !ok {
		return 0, 0, 0, fmt.Errorf("unexpected claim amount type: %T", values[1])
	}
	count, ok := values[2].(int64)
	if !ok {
		return 0, 0, 0, fmt.Errorf("unexpected remain count type: %T", values[2])
	}
	remainAmount, ok = values[3].(int64)
	if !ok {
		return 0, 0, 0, fmt.Errorf("unexpected remain amount type: %T", values[3])
	}
	return amount, int(count), remainAmount, nil
}

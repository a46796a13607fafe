/**
 * @description
 * This file defines the core domain models for the packet-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, storage and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit, which
 *   avoids floating-point inaccuracies with financial data.
 * - Timestamps on persisted entities are unix seconds so that the
 *   store-side claim script can compare them numerically.
 */

package domain

import "time"

// Packet represents one allocation event: a fixed total amount pre-split
// into a fixed count of shares. This struct maps directly to the JSON
// document stored under the packet key.
type Packet struct {
	ID           string `json:"id"`
	TotalAmount  int64  `json:"total_amount"`
	TotalCount   int    `json:"total_count"`
	RemainAmount int64  `json:"remain_amount"`
	RemainCount  int    `json:"remain_count"`
	CreatorID    string `json:"creator_id"`
	CreatedAt    int64  `json:"created_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Expired reports whether the packet's deadline has passed at the given time.
func (p *Packet) Expired(now time.Time) bool {
	return now.Unix() > p.ExpiresAt
}

// ClaimRecord represents one successful draw of exactly one share by
// exactly one claimant. At most one record exists per (packet, claimant)
// pair; it is written inside the atomic claim transaction and never mutated.
type ClaimRecord struct {
	ID         string `json:"id"`
	PacketID   string `json:"packet_id"`
	ClaimantID string `json:"claimant_id"`
	Amount     int64  `json:"amount"`
	ClaimedAt  int64  `json:"claimed_at"`
}

// CreatePacketRequest is the DTO for incoming packet creation API requests.
type CreatePacketRequest struct {
	TotalAmount   int64 `json:"total_amount" validate:"required,gt=0"`
	TotalCount    int   `json:"total_count" validate:"required,gt=0"`
	ExpireMinutes int   `json:"expire_minutes" validate:"gte=0"`
}

// CreatePacketResponse is returned to the client after a packet is created.
type CreatePacketResponse struct {
	PacketID  string    `json:"packet_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ClaimResult summarizes a successful claim for the caller, including the
// packet's remaining state as observed by the committing transaction.
type ClaimResult struct {
	RecordID     string    `json:"record_id"`
	PacketID     string    `json:"packet_id"`
	ClaimantID   string    `json:"claimant_id"`
	Amount       int64     `json:"amount"`
	RemainCount  int       `json:"remain_count"`
	RemainAmount int64     `json:"remain_amount"`
	ClaimedAt    time.Time `json:"claimed_at"`
}

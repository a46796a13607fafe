package domain

import "time"

// PacketCreatedEvent is published after a packet and its share list have
// been persisted.
type PacketCreatedEvent struct {
	PacketID    string    `json:"packet_id"`
	CreatorID   string    `json:"creator_id"`
	TotalAmount int64     `json:"total_amount"`
	TotalCount  int       `json:"total_count"`
	ExpiresAt   time.Time `json:"expires_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// PacketClaimedEvent is published after a claim transaction commits. The
// archive consumer persists these for audit beyond the packet's expiry.
type PacketClaimedEvent struct {
	RecordID     string    `json:"record_id"`
	PacketID     string    `json:"packet_id"`
	ClaimantID   string    `json:"claimant_id"`
	Amount       int64     `json:"amount"`
	RemainCount  int       `json:"remain_count"`
	RemainAmount int64     `json:"remain_amount"`
	ClaimedAt    time.Time `json:"claimed_at"`
}

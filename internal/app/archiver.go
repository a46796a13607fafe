package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/luckyshare/packet-service/internal/domain"
	"github.com/luckyshare/packet-service/internal/store"
)

const archiveWriteTimeout = 10 * time.Second

// ClaimArchiver consumes packet.claimed events and writes them to the
// durable claim archive. It is observational only: archive state never
// feeds back into claim decisions.
type ClaimArchiver struct {
	archive store.ClaimArchive
}

func NewClaimArchiver(archive store.ClaimArchive) *ClaimArchiver {
	return &ClaimArchiver{archive: archive}
}

// HandleClaimedMessage processes one packet.claimed delivery. Returning
// false requeues the message; malformed payloads and a missing archive
// schema are acked so they do not loop forever.
func (c *ClaimArchiver) HandleClaimedMessage(body []byte) bool {
	var event domain.PacketClaimedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=claim_archiver msg=\"malformed claim event; dropping\" err=%v", err)
		return true
	}
	if event.RecordID == "" || event.PacketID == "" || event.ClaimantID == "" {
		log.Printf("level=warn component=claim_archiver msg=\"incomplete claim event; dropping\" packet_id=%s", event.PacketID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveWriteTimeout)
	defer cancel()

	record := domain.ClaimRecord{
		ID:         event.RecordID,
		PacketID:   event.PacketID,
		ClaimantID: event.ClaimantID,
		Amount:     event.Amount,
		ClaimedAt:  event.ClaimedAt.Unix(),
	}
	if err := c.archive.InsertArchivedClaim(ctx, record); err != nil {
		if errors.Is(err, store.ErrArchiveUnavailable) {
			log.Printf("level=warn component=claim_archiver msg=\"archive schema missing; dropping event\" packet_id=%s", event.PacketID)
			return true
		}
		log.Printf("level=warn component=claim_archiver msg=\"archive insert failed; re-queuing\" packet_id=%s record_id=%s err=%v", event.PacketID, event.RecordID, err)
		return false
	}

	log.Printf("level=info component=claim_archiver msg=\"claim archived\" packet_id=%s claimant_id=%s amount=%d", event.PacketID, event.ClaimantID, event.Amount)
	return true
}

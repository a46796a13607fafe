package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// Ten distinct claimants race for a three-share packet. Exactly three may
// win, the winners' amounts must drain the pool exactly, and everyone else
// must see the exhausted outcome.
func TestClaimPacket_ConcurrentDistinctClaimants(t *testing.T) {
	fake := newFakeStore()
	svc := newTestService(fake, &capturingPublisher{})

	resp, err := svc.CreatePacket(context.Background(), "creator-1", 100, 3, 60)
	if err != nil {
		t.Fatalf("CreatePacket returned error: %v", err)
	}

	const claimants = 10
	results := make([]*struct {
		amount int64
		err    error
	}, claimants)

	var wg sync.WaitGroup
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.ClaimPacket(context.Background(), resp.PacketID, fmt.Sprintf("claimant-%d", i))
			entry := &struct {
				amount int64
				err    error
			}{err: err}
			if err == nil {
				entry.amount = result.Amount
			}
			results[i] = entry
		}(i)
	}
	wg.Wait()

	var wins int
	var sum int64
	for i, entry := range results {
		switch {
		case entry.err == nil:
			wins++
			sum += entry.amount
			if entry.amount < 1 {
				t.Errorf("claimant %d won a non-positive amount %d", i, entry.amount)
			}
		case errors.Is(entry.err, ErrPacketExhausted):
		default:
			t.Errorf("claimant %d got unexpected error %v", i, entry.err)
		}
	}
	if wins != 3 {
		t.Fatalf("expected exactly 3 winners, got %d", wins)
	}
	if sum != 100 {
		t.Fatalf("winners' amounts sum to %d, want 100", sum)
	}

	packet, err := svc.GetPacket(context.Background(), resp.PacketID)
	if err != nil {
		t.Fatalf("GetPacket returned error: %v", err)
	}
	if packet.RemainCount != 0 || packet.RemainAmount != 0 {
		t.Fatalf("drained packet should have zero remainders: %+v", packet)
	}
}

// The same claimant firing duplicate requests in parallel may be paid at
// most once; the rest collapse into the already-claimed or in-progress
// outcome without consuming extra shares.
func TestClaimPacket_ConcurrentDuplicateClaimant(t *testing.T) {
	fake := newFakeStore()
	svc := newTestService(fake, &capturingPublisher{})

	resp, err := svc.CreatePacket(context.Background(), "creator-1", 100, 3, 60)
	if err != nil {
		t.Fatalf("CreatePacket returned error: %v", err)
	}

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ClaimPacket(context.Background(), resp.PacketID, "claimant-1")
		}(i)
	}
	wg.Wait()

	var wins, rejected int
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyClaimed), errors.Is(err, ErrClaimInProgress):
			rejected++
		default:
			t.Errorf("attempt %d got unexpected error %v", i, err)
		}
	}
	if wins > 1 {
		t.Fatalf("claimant was paid %d times, want at most 1", wins)
	}
	if wins+rejected != attempts {
		t.Fatalf("accounted for %d of %d attempts", wins+rejected, attempts)
	}

	packet, err := svc.GetPacket(context.Background(), resp.PacketID)
	if err != nil {
		t.Fatalf("GetPacket returned error: %v", err)
	}
	if packet.TotalCount-packet.RemainCount != wins {
		t.Fatalf("consumed %d shares for %d wins", packet.TotalCount-packet.RemainCount, wins)
	}
}

package api

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/luckyshare/packet-service/internal/app"
	"github.com/luckyshare/packet-service/internal/domain"
	"github.com/luckyshare/packet-service/internal/store"
)

func TestWriteClaimError_StatusMapping(t *testing.T) {
	h := &PacketHandlers{}

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantRetry  string
	}{
		{"rate limited", &app.RateLimitedError{RetryAfterSeconds: 12}, 429, "12"},
		{"invalid argument", app.ErrInvalidArgument, 400, ""},
		{"packet not found", app.ErrPacketNotFound, 404, ""},
		{"already claimed", app.ErrAlreadyClaimed, 409, ""},
		{"claim in progress", app.ErrClaimInProgress, 409, "1"},
		{"exhausted", app.ErrPacketExhausted, 410, ""},
		{"expired", app.ErrPacketExpired, 410, ""},
		{"store unavailable", store.ErrUnavailable, 503, ""},
		{"unknown", errors.New("boom"), 500, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeClaimError(rec, "p1", "u1", tc.err)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := rec.Header().Get("Retry-After"); got != tc.wantRetry {
				t.Errorf("Retry-After = %q, want %q", got, tc.wantRetry)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestCreateValidator(t *testing.T) {
	v := newCreateValidator()

	cases := []struct {
		name    string
		req     domain.CreatePacketRequest
		wantErr bool
	}{
		{"valid", domain.CreatePacketRequest{TotalAmount: 100, TotalCount: 3, ExpireMinutes: 60}, false},
		{"zero expiry uses default", domain.CreatePacketRequest{TotalAmount: 100, TotalCount: 3}, false},
		{"zero amount", domain.CreatePacketRequest{TotalAmount: 0, TotalCount: 3}, true},
		{"zero count", domain.CreatePacketRequest{TotalAmount: 100, TotalCount: 0}, true},
		{"negative expiry", domain.CreatePacketRequest{TotalAmount: 100, TotalCount: 3, ExpireMinutes: -1}, true},
		{"amount below count", domain.CreatePacketRequest{TotalAmount: 2, TotalCount: 3}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Struct(tc.req)
			if tc.wantErr && err == nil {
				t.Error("expected a validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

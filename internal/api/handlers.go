/**
 * @description
 * This file contains the HTTP handlers for the packet-service's API
 * endpoints. Handlers parse incoming requests, call the application
 * service, and translate typed service outcomes into HTTP responses.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For route parameters.
 * - github.com/go-playground/validator/v10: Request validation.
 * - internal/app, internal/domain, internal/store: Service logic, models, errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luckyshare/packet-service/internal/app"
	"github.com/luckyshare/packet-service/internal/domain"
	"github.com/luckyshare/packet-service/internal/store"
)

// PacketHandlers holds the application service that handlers will use.
type PacketHandlers struct {
	service  *app.Service
	validate *validator.Validate
}

// NewPacketHandlers creates a new instance of PacketHandlers.
func NewPacketHandlers(service *app.Service) *PacketHandlers {
	return &PacketHandlers{
		service:  service,
		validate: newCreateValidator(),
	}
}

// newCreateValidator configures field validation plus a struct-level check
// that the total amount can cover one unit per share.
func newCreateValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(domain.CreatePacketRequest)
		if req.TotalCount > 0 && req.TotalAmount < int64(req.TotalCount) {
			sl.ReportError(req.TotalAmount, "total_amount", "TotalAmount", "amount_covers_count",
				fmt.Sprintf("amount %d cannot cover %d shares", req.TotalAmount, req.TotalCount))
		}
	}, domain.CreatePacketRequest{})
	return v
}

// packetSnapshotResponse is the external view of a packet's current state.
type packetSnapshotResponse struct {
	PacketID     string    `json:"packet_id"`
	TotalAmount  int64     `json:"total_amount"`
	TotalCount   int       `json:"total_count"`
	RemainAmount int64     `json:"remain_amount"`
	RemainCount  int       `json:"remain_count"`
	CreatorID    string    `json:"creator_id"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Expired      bool      `json:"expired"`
}

// claimRecordResponse is the external view of one claim record.
type claimRecordResponse struct {
	RecordID   string    `json:"record_id"`
	PacketID   string    `json:"packet_id"`
	ClaimantID string    `json:"claimant_id"`
	Amount     int64     `json:"amount"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

// CreatePacketHandler handles requests to create a new packet.
func (h *PacketHandlers) CreatePacketHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/packets"))
	defer timer.ObserveDuration()

	creatorID, ok := GetClaimantID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get caller ID from context")
		return
	}

	var req domain.CreatePacketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Printf("level=warn component=api endpoint=create_packet outcome=reject reason=validation creator_id=%s err=%v", creatorID, err)
		h.writeError(w, http.StatusBadRequest, "Invalid packet parameters: amount and count must be positive and amount must cover one unit per share")
		return
	}

	response, err := h.service.CreatePacket(r.Context(), creatorID, req.TotalAmount, req.TotalCount, req.ExpireMinutes)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_packet outcome=failed creator_id=%s err=%v", creatorID, err)
		if errors.Is(err, app.ErrInvalidArgument) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, store.ErrUnavailable) {
			h.writeError(w, http.StatusServiceUnavailable, "Store unavailable, please retry")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to create packet")
		return
	}

	h.writeJSON(w, http.StatusCreated, response)
}

// ClaimPacketHandler handles requests to claim one share from a packet.
func (h *PacketHandlers) ClaimPacketHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/packets/{packet_id}/claims"))
	defer timer.ObserveDuration()

	claimantID, ok := GetClaimantID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get caller ID from context")
		return
	}
	packetID := chi.URLParam(r, "packet_id")

	result, err := h.service.ClaimPacket(r.Context(), packetID, claimantID)
	if err != nil {
		h.writeClaimError(w, packetID, claimantID, err)
		return
	}

	claimResults.WithLabelValues("committed").Inc()
	h.writeJSON(w, http.StatusOK, domain.ClaimResult{
		RecordID:     result.RecordID,
		PacketID:     result.PacketID,
		ClaimantID:   result.ClaimantID,
		Amount:       result.Amount,
		RemainCount:  result.RemainCount,
		RemainAmount: result.RemainAmount,
		ClaimedAt:    result.ClaimedAt,
	})
}

// writeClaimError maps every named claim outcome to exactly one HTTP status.
func (h *PacketHandlers) writeClaimError(w http.ResponseWriter, packetID, claimantID string, err error) {
	var rateLimited *app.RateLimitedError
	switch {
	case errors.As(err, &rateLimited):
		claimResults.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", fmt.Sprintf("%d", rateLimited.RetryAfterSeconds))
		h.writeError(w, http.StatusTooManyRequests, "Too many claim attempts, slow down")
	case errors.Is(err, app.ErrInvalidArgument):
		claimResults.WithLabelValues("invalid").Inc()
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrPacketNotFound):
		claimResults.WithLabelValues("not_found").Inc()
		h.writeError(w, http.StatusNotFound, "Packet not found or expired")
	case errors.Is(err, app.ErrAlreadyClaimed):
		claimResults.WithLabelValues("already_claimed").Inc()
		h.writeError(w, http.StatusConflict, "You have already claimed this packet")
	case errors.Is(err, app.ErrClaimInProgress):
		claimResults.WithLabelValues("in_progress").Inc()
		w.Header().Set("Retry-After", "1")
		h.writeError(w, http.StatusConflict, "A claim for this packet is already in progress, retry shortly")
	case errors.Is(err, app.ErrPacketExhausted):
		claimResults.WithLabelValues("exhausted").Inc()
		h.writeError(w, http.StatusGone, "All shares of this packet have been claimed")
	case errors.Is(err, app.ErrPacketExpired):
		claimResults.WithLabelValues("expired").Inc()
		h.writeError(w, http.StatusGone, "This packet has expired")
	case errors.Is(err, store.ErrUnavailable):
		claimResults.WithLabelValues("store_unavailable").Inc()
		log.Printf("level=error component=api endpoint=claim_packet outcome=failed packet_id=%s claimant_id=%s err=%v", packetID, claimantID, err)
		h.writeError(w, http.StatusServiceUnavailable, "Store unavailable, please retry")
	default:
		claimResults.WithLabelValues("error").Inc()
		log.Printf("level=error component=api endpoint=claim_packet outcome=failed packet_id=%s claimant_id=%s err=%v", packetID, claimantID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to claim packet")
	}
}

// GetPacketHandler returns a snapshot of a packet's current state.
func (h *PacketHandlers) GetPacketHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("GET", "/packets/{packet_id}"))
	defer timer.ObserveDuration()

	packetID := chi.URLParam(r, "packet_id")
	packet, err := h.service.GetPacket(r.Context(), packetID)
	if err != nil {
		if errors.Is(err, app.ErrPacketNotFound) {
			h.writeError(w, http.StatusNotFound, "Packet not found")
			return
		}
		log.Printf("level=warn component=api endpoint=get_packet outcome=failed packet_id=%s err=%v", packetID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load packet")
		return
	}

	h.writeJSON(w, http.StatusOK, packetSnapshotResponse{
		PacketID:     packet.ID,
		TotalAmount:  packet.TotalAmount,
		TotalCount:   packet.TotalCount,
		RemainAmount: packet.RemainAmount,
		RemainCount:  packet.RemainCount,
		CreatorID:    packet.CreatorID,
		CreatedAt:    time.Unix(packet.CreatedAt, 0),
		ExpiresAt:    time.Unix(packet.ExpiresAt, 0),
		Expired:      packet.Expired(time.Now()),
	})
}

// GetClaimHandler returns the claim record for one (packet, claimant) pair.
func (h *PacketHandlers) GetClaimHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("GET", "/packets/{packet_id}/claims/{claimant_id}"))
	defer timer.ObserveDuration()

	packetID := chi.URLParam(r, "packet_id")
	claimantID := chi.URLParam(r, "claimant_id")

	record, err := h.service.GetClaim(r.Context(), packetID, claimantID)
	if err != nil {
		if errors.Is(err, app.ErrClaimNotFound) {
			h.writeError(w, http.StatusNotFound, "Claim record not found")
			return
		}
		log.Printf("level=warn component=api endpoint=get_claim outcome=failed packet_id=%s claimant_id=%s err=%v", packetID, claimantID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load claim record")
		return
	}

	h.writeJSON(w, http.StatusOK, claimRecordResponse{
		RecordID:   record.ID,
		PacketID:   record.PacketID,
		ClaimantID: record.ClaimantID,
		Amount:     record.Amount,
		ClaimedAt:  time.Unix(record.ClaimedAt, 0),
	})
}

// writeJSON is a helper for writing JSON responses.
func (h *PacketHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PacketHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

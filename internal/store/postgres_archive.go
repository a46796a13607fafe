/**
 * @description
 * Durable archive of claim records. Packet state in the shared store
 * expires with the packet; the archive keeps an audit trail of successful
 * claims beyond that deadline. It is written asynchronously by the claim
 * event consumer and never read on the claim path.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pool.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luckyshare/packet-service/internal/domain"
)

// ErrArchiveUnavailable is returned when the archive schema is missing, so
// callers can degrade instead of endlessly retrying.
var ErrArchiveUnavailable = errors.New("claim archive unavailable")

// ClaimArchive is the contract for the durable claim audit trail.
type ClaimArchive interface {
	InsertArchivedClaim(ctx context.Context, record domain.ClaimRecord) error
	CountArchivedClaims(ctx context.Context, packetID string) (int64, error)
}

// PostgresArchive implements ClaimArchive on a pgx connection pool.
type PostgresArchive struct {
	db *pgxpool.Pool
}

func NewPostgresArchive(db *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{db: db}
}

func isUndefinedTableError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// InsertArchivedClaim stores one claim record. Inserts are idempotent on
// record id so a re-delivered event never duplicates a row.
func (a *PostgresArchive) InsertArchivedClaim(ctx context.Context, record domain.ClaimRecord) error {
	query := `
		INSERT INTO packet_claim_archive (
			record_id,
			packet_id,
			claimant_id,
			amount,
			claimed_at,
			archived_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (record_id) DO NOTHING
	`
	_, err := a.db.Exec(ctx, query,
		record.ID,
		record.PacketID,
		record.ClaimantID,
		record.Amount,
		time.Unix(record.ClaimedAt, 0).UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		if isUndefinedTableError(err) {
			return ErrArchiveUnavailable
		}
		return err
	}
	return nil
}

// CountArchivedClaims reports how many claims have been archived for one
// packet. Used by operational checks, not by the claim path.
func (a *PostgresArchive) CountArchivedClaims(ctx context.Context, packetID string) (int64, error) {
	var count int64
	err := a.db.QueryRow(ctx, `SELECT COUNT(*) FROM packet_claim_archive WHERE packet_id = $1`, packetID).Scan(&count)
	if err != nil {
		if isUndefinedTableError(err) {
			return 0, ErrArchiveUnavailable
		}
		return 0, err
	}
	return count, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/reward-ticket-service/internal/model"
	"github.com/fairyhunter13/reward-ticket-service/internal/service"
	"github.com/fairyhunter13/reward-ticket-service/pkg/database"
)

// TicketRepository provides data access for reward purchases using pgx.
type TicketRepository struct {
	pool database.TxQuerier
}

// NewTicketRepository creates a new TicketRepository with the given pool.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

// NewTicketRepositoryWithPool creates a new TicketRepository with a custom pool interface.
// This is primarily used for testing.
func NewTicketRepositoryWithPool(pool database.TxQuerier) *TicketRepository {
	return &TicketRepository{pool: pool}
}

const ticketColumns = `p.id, p.family_id, p.child_id, p.status, p.purchased_at,
	p.use_requested_at, p.started_at, p.paused_at, p.progress_at, p.elapsed_seconds,
	p.used_at, p.fulfilled_at, p.fulfilled_by, p.approved_by,
	r.id, r.name, r.category, r.screen_minutes, r.points_cost`

const ticketFrom = `FROM reward_purchases p JOIN rewards r ON r.id = p.reward_id`

func scanTicket(row pgx.Row) (*model.RewardPurchase, error) {
	var p model.RewardPurchase
	err := row.Scan(
		&p.ID, &p.FamilyID, &p.ChildID, &p.Status, &p.PurchasedAt,
		&p.UseRequestedAt, &p.StartedAt, &p.PausedAt, &p.ProgressAt, &p.ElapsedSeconds,
		&p.UsedAt, &p.FulfilledAt, &p.FulfilledBy, &p.ApprovedBy,
		&p.Reward.ID, &p.Reward.Name, &p.Reward.Category, &p.Reward.ScreenMinutes, &p.Reward.PointsCost,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID retrieves a ticket with its reward.
// Returns service.ErrTicketNotFound if the ticket doesn't exist.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*model.RewardPurchase, error) {
	query := `SELECT ` + ticketColumns + ` ` + ticketFrom + ` WHERE p.id = $1`

	p, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return p, nil
}

// GetForUpdate retrieves a ticket with a row lock (SELECT FOR UPDATE).
// The lock is held until the transaction completes, so the state check and
// the write of a transition cannot interleave with another transition.
// Returns service.ErrTicketNotFound if the ticket doesn't exist.
func (r *TicketRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, id string) (*model.RewardPurchase, error) {
	query := `SELECT ` + ticketColumns + ` ` + ticketFrom + ` WHERE p.id = $1 FOR UPDATE OF p`

	p, err := scanTicket(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket for update %s: %w", id, err)
	}
	return p, nil
}

// ListByChild returns a child's tickets within a family, newest first.
// On success, returns an empty slice (not nil) when the child has no tickets.
func (r *TicketRepository) ListByChild(ctx context.Context, familyID, childID string) ([]model.RewardPurchase, error) {
	query := `SELECT ` + ticketColumns + ` ` + ticketFrom + `
		WHERE p.child_id = $1 AND p.family_id = $2
		ORDER BY p.purchased_at DESC`

	rows, err := r.pool.Query(ctx, query, childID, familyID)
	if err != nil {
		return nil, fmt.Errorf("list tickets for child %s: %w", childID, err)
	}
	defer rows.Close()

	tickets := []model.RewardPurchase{}
	for rows.Next() {
		p, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket rows: %w", err)
	}
	return tickets, nil
}

// Save writes the mutable lifecycle columns of a ticket.
// Must be called within the transaction that locked the row.
func (r *TicketRepository) Save(ctx context.Context, tx database.TxQuerier, p *model.RewardPurchase) error {
	query := `UPDATE reward_purchases SET
		status = $2, use_requested_at = $3, started_at = $4, paused_at = $5, progress_at = $6,
		elapsed_seconds = $7, used_at = $8, fulfilled_at = $9, fulfilled_by = $10, approved_by = $11
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query,
		p.ID, string(p.Status), p.UseRequestedAt, p.StartedAt, p.PausedAt, p.ProgressAt,
		p.ElapsedSeconds, p.UsedAt, p.FulfilledAt, p.FulfilledBy, p.ApprovedBy)
	if err != nil {
		return fmt.Errorf("save ticket %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrTicketNotFound
	}
	return nil
}

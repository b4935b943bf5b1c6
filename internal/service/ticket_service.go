package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/reward-ticket-service/internal/events"
	"github.com/fairyhunter13/reward-ticket-service/internal/model"
	"github.com/fairyhunter13/reward-ticket-service/internal/ticket"
	"github.com/fairyhunter13/reward-ticket-service/pkg/database"
)

// TicketRepositoryInterface defines the interface for ticket data access.
type TicketRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.RewardPurchase, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, id string) (*model.RewardPurchase, error)
	ListByChild(ctx context.Context, familyID, childID string) ([]model.RewardPurchase, error)
	Save(ctx context.Context, tx database.TxQuerier, p *model.RewardPurchase) error
}

// EventPublisher receives committed transitions.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.TicketEvent) error
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TicketService drives reward tickets through their lifecycle.
type TicketService struct {
	pool      TxBeginner
	repo      TicketRepositoryInterface
	publisher EventPublisher
	now       func() time.Time
}

// NewTicketService creates a new TicketService with the given pool, repository and publisher.
func NewTicketService(pool *pgxpool.Pool, repo TicketRepositoryInterface, publisher EventPublisher) *TicketService {
	return NewTicketServiceWithTxBeginner(pool, repo, publisher)
}

// NewTicketServiceWithTxBeginner creates a TicketService with a custom TxBeginner.
// Primarily used for testing.
func NewTicketServiceWithTxBeginner(pool TxBeginner, repo TicketRepositoryInterface, publisher EventPublisher) *TicketService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &TicketService{
		pool:      pool,
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
	}
}

// authorizer checks the acting party against the locked ticket.
type authorizer func(p *model.RewardPurchase) error

// mutator applies edge-specific bookkeeping after the status change.
type mutator func(p *model.RewardPurchase, now time.Time) error

func ownedByChild(childID string) authorizer {
	return func(p *model.RewardPurchase) error {
		if p.ChildID != childID {
			return Reject(MsgNotChildsTicket)
		}
		return nil
	}
}

func ownedByFamily(familyID string) authorizer {
	return func(p *model.RewardPurchase) error {
		if p.FamilyID != familyID {
			return Reject(MsgNotFamilysTicket)
		}
		return nil
	}
}

// transition runs one edge atomically:
//  1. lock the ticket row (SELECT FOR UPDATE)
//  2. check ownership and edge legality
//  3. apply bookkeeping and write the row
//  4. commit, then publish the event
//
// Returns:
//   - ErrTicketNotFound if the ticket doesn't exist
//   - *RejectionError when the edge is not legal for this ticket or caller
func (s *TicketService) transition(ctx context.Context, ticketID string, edge ticket.Edge, authorize authorizer, mutate mutator) (*model.RewardPurchase, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	p, err := s.repo.GetForUpdate(ctx, tx, ticketID)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket for update: %w", err)
	}

	if err := authorize(p); err != nil {
		return nil, err
	}

	next, err := ticket.Transition(p.State(), edge)
	if err != nil {
		var te *ticket.TransitionError
		if errors.As(err, &te) {
			return nil, Reject(te.Message)
		}
		return nil, fmt.Errorf("transition %s: %w", edge, err)
	}

	now := s.now()
	p.Status = next.Status
	if mutate != nil {
		if err := mutate(p, now); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Save(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("save ticket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.publish(ctx, edge, p, now)
	return p, nil
}

// publish is best effort: the transition is already committed.
func (s *TicketService) publish(ctx context.Context, edge ticket.Edge, p *model.RewardPurchase, now time.Time) {
	ev := events.NewTicketEvent(string(edge), p.ID, p.FamilyID, p.ChildID, string(p.Status), p.PausedAt != nil, p.ElapsedSeconds, now)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Warn().
			Err(err).
			Str("purchase_id", p.ID).
			Str("edge", string(edge)).
			Msg("failed to publish ticket event")
	}
}

// RequestUse moves a screen-time ticket from active to use_requested.
func (s *TicketService) RequestUse(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error) {
	return s.transition(ctx, ticketID, ticket.EdgeRequestUse, ownedByChild(childID),
		func(p *model.RewardPurchase, now time.Time) error {
			p.UseRequestedAt = &now
			return nil
		})
}

// Approve starts the screen time of a requested ticket.
func (s *TicketService) Approve(ctx context.Context, ticketID, parentID, familyID string) (*model.RewardPurchase, error) {
	return s.transition(ctx, ticketID, ticket.EdgeApprove, ownedByFamily(familyID),
		func(p *model.RewardPurchase, now time.Time) error {
			p.StartedAt = &now
			p.ProgressAt = &now
			p.PausedAt = nil
			p.ApprovedBy = &parentID
			return nil
		})
}

// Fulfill marks a non-screen-time ticket as given by a parent.
func (s *TicketService) Fulfill(ctx context.Context, ticketID, parentID, familyID string) (*model.RewardPurchase, error) {
	return s.transition(ctx, ticketID, ticket.EdgeFulfill, ownedByFamily(familyID),
		func(p *model.RewardPurchase, now time.Time) error {
			p.FulfilledAt = &now
			p.FulfilledBy = &parentID
			return nil
		})
}

// Pause snapshots the running elapsed time and stops the clock.
func (s *TicketService) Pause(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error) {
	return s.transition(ctx, ticketID, ticket.EdgePause, ownedByChild(childID),
		func(p *model.RewardPurchase, now time.Time) error {
			p.ElapsedSeconds = checkpoint(p, now)
			p.PausedAt = &now
			p.ProgressAt = nil
			return nil
		})
}

// Resume restarts the clock of a paused ticket.
func (s *TicketService) Resume(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error) {
	return s.transition(ctx, ticketID, ticket.EdgeResume, ownedByChild(childID),
		func(p *model.RewardPurchase, now time.Time) error {
			p.PausedAt = nil
			p.ProgressAt = &now
			return nil
		})
}

// SaveProgress records the client's elapsed seconds. Values below the stored
// checkpoint are rejected. The saved value is capped at the allotment and
// never falls behind the server's running clock, so a stale or replayed
// report keeps the time already used.
func (s *TicketService) SaveProgress(ctx context.Context, ticketID, childID string, elapsedSeconds int) (*model.RewardPurchase, error) {
	if elapsedSeconds < 0 {
		return nil, ErrInvalidRequest
	}
	return s.transition(ctx, ticketID, ticket.EdgeSaveProgress, ownedByChild(childID),
		func(p *model.RewardPurchase, now time.Time) error {
			if elapsedSeconds < p.ElapsedSeconds {
				return Reject(MsgElapsedDecreased)
			}
			reported := ticket.ClampElapsed(elapsedSeconds, p.ElapsedSeconds, p.Reward.AllotmentSeconds())
			p.ElapsedSeconds = max(reported, checkpoint(p, now))
			if p.PausedAt == nil {
				p.ProgressAt = &now
			}
			return nil
		})
}

// Complete finishes a screen-time ticket.
func (s *TicketService) Complete(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error) {
	return s.transition(ctx, ticketID, ticket.EdgeComplete, ownedByChild(childID),
		func(p *model.RewardPurchase, now time.Time) error {
			p.ElapsedSeconds = checkpoint(p, now)
			p.UsedAt = &now
			p.PausedAt = nil
			p.ProgressAt = nil
			return nil
		})
}

func checkpoint(p *model.RewardPurchase, now time.Time) int {
	return ticket.ClampElapsed(
		ticket.RunningElapsed(p.ElapsedSeconds, p.ProgressAt, now),
		p.ElapsedSeconds,
		p.Reward.AllotmentSeconds(),
	)
}

// GetTicket retrieves a ticket without locking it.
// Returns ErrTicketNotFound if the ticket doesn't exist.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*model.RewardPurchase, error) {
	p, err := s.repo.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return p, nil
}

// ListChildTickets returns a child's tickets within a family.
func (s *TicketService) ListChildTickets(ctx context.Context, familyID, childID string) ([]model.RewardPurchase, error) {
	tickets, err := s.repo.ListByChild(ctx, familyID, childID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// Now returns the service clock reading.
func (s *TicketService) Now() time.Time {
	return s.now()
}

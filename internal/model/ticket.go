package model

import (
	"time"

	"github.com/fairyhunter13/reward-ticket-service/internal/ticket"
)

// CategoryScreenTime marks rewards whose redemption grants a bounded amount
// of screen time tracked through elapsed seconds.
const CategoryScreenTime = "screen_time"

// Reward is the catalog entry a ticket references. Read-only here.
type Reward struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	ScreenMinutes int    `json:"screen_minutes"`
	PointsCost    int    `json:"points_cost"`
}

// IsScreenTime reports whether the reward is consumed as timed screen time.
func (r Reward) IsScreenTime() bool {
	return r.Category == CategoryScreenTime
}

// AllotmentSeconds is the screen time granted by the reward, zero when not
// applicable.
func (r Reward) AllotmentSeconds() int {
	if !r.IsScreenTime() || r.ScreenMinutes <= 0 {
		return 0
	}
	return r.ScreenMinutes * 60
}

// RewardPurchase is one redemption of a reward by a child: a ticket.
type RewardPurchase struct {
	ID             string
	FamilyID       string
	ChildID        string
	Status         ticket.Status
	PurchasedAt    time.Time
	UseRequestedAt *time.Time
	StartedAt      *time.Time
	PausedAt       *time.Time
	ProgressAt     *time.Time // running checkpoint; nil unless in_use and not paused
	ElapsedSeconds int
	UsedAt         *time.Time
	FulfilledAt    *time.Time
	FulfilledBy    *string
	ApprovedBy     *string
	Reward         Reward
}

// State returns the view of the ticket the transition table works on.
func (p *RewardPurchase) State() ticket.State {
	return ticket.State{
		Status:     p.Status,
		Paused:     p.PausedAt != nil,
		ScreenTime: p.Reward.IsScreenTime(),
	}
}

// TicketResponse is the API shape of a ticket.
type TicketResponse struct {
	ID               string  `json:"id"`
	ChildID          string  `json:"child_id"`
	Status           string  `json:"status"`
	Paused           bool    `json:"paused"`
	Reward           Reward  `json:"reward"`
	PurchasedAt      string  `json:"purchased_at"`
	UseRequestedAt   *string `json:"use_requested_at,omitempty"`
	StartedAt        *string `json:"started_at,omitempty"`
	PausedAt         *string `json:"paused_at,omitempty"`
	UsedAt           *string `json:"used_at,omitempty"`
	FulfilledAt      *string `json:"fulfilled_at,omitempty"`
	FulfilledBy      *string `json:"fulfilled_by,omitempty"`
	ElapsedSeconds   int     `json:"elapsed_seconds"`
	RemainingSeconds *int    `json:"remaining_seconds,omitempty"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// ToResponse shapes the ticket for clients. Elapsed time of a running
// screen-time ticket is computed as of now.
func (p *RewardPurchase) ToResponse(now time.Time) TicketResponse {
	elapsed := p.ElapsedSeconds
	if p.Status == ticket.StatusInUse {
		elapsed = ticket.ClampElapsed(
			ticket.RunningElapsed(p.ElapsedSeconds, p.ProgressAt, now),
			p.ElapsedSeconds,
			p.Reward.AllotmentSeconds(),
		)
	}

	resp := TicketResponse{
		ID:             p.ID,
		ChildID:        p.ChildID,
		Status:         string(p.Status),
		Paused:         p.PausedAt != nil,
		Reward:         p.Reward,
		PurchasedAt:    p.PurchasedAt.UTC().Format(time.RFC3339),
		UseRequestedAt: formatTime(p.UseRequestedAt),
		StartedAt:      formatTime(p.StartedAt),
		PausedAt:       formatTime(p.PausedAt),
		UsedAt:         formatTime(p.UsedAt),
		FulfilledAt:    formatTime(p.FulfilledAt),
		FulfilledBy:    p.FulfilledBy,
		ElapsedSeconds: elapsed,
	}

	if allotment := p.Reward.AllotmentSeconds(); allotment > 0 {
		remaining := ticket.Remaining(allotment, elapsed)
		resp.RemainingSeconds = &remaining
	}
	return resp
}

// ChildActionRequest is the body of child-scoped ticket edges.
type ChildActionRequest struct {
	ChildID string `json:"childId" validate:"required,notblank,max=128"`
}

// SaveProgressRequest is the body of POST /tickets/:id/save-progress.
type SaveProgressRequest struct {
	ChildID        string   `json:"childId" validate:"required,notblank,max=128"`
	ElapsedSeconds *float64 `json:"elapsedSeconds" validate:"required,gte=0,lte=2147483647"`
}

package handler

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/reward-ticket-service/internal/auth"
	"github.com/fairyhunter13/reward-ticket-service/internal/model"
	"github.com/fairyhunter13/reward-ticket-service/internal/service"
)

// TicketQueryServiceInterface defines read access to tickets.
type TicketQueryServiceInterface interface {
	GetTicket(ctx context.Context, ticketID string) (*model.RewardPurchase, error)
	ListChildTickets(ctx context.Context, familyID, childID string) ([]model.RewardPurchase, error)
	Now() time.Time
}

// TicketQueryHandler handles HTTP requests that read tickets.
type TicketQueryHandler struct {
	service   TicketQueryServiceInterface
	validator *validator.Validate
}

// NewTicketQueryHandler creates a new TicketQueryHandler with the given service and validator.
func NewTicketQueryHandler(svc TicketQueryServiceInterface, v *validator.Validate) *TicketQueryHandler {
	return &TicketQueryHandler{service: svc, validator: v}
}

// visibleTo reports whether the principal may read the ticket: a parent of
// the ticket's family or the owning child.
func visibleTo(p auth.Principal, t *model.RewardPurchase) bool {
	switch who := p.(type) {
	case auth.Parent:
		return who.FamilyID == t.FamilyID
	case auth.Child:
		return who.ID == t.ChildID && who.FamilyID == t.FamilyID
	}
	return false
}

// GetTicket handles GET /tickets/:id requests to retrieve ticket details.
// Tickets outside the caller's reach read as not found.
func (h *TicketQueryHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFrom(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, MsgUnauthorized)
	}

	ticketID := c.Params("id")
	if err := h.validator.Var(ticketID, "entityid"); err != nil {
		return fail(c, fiber.StatusBadRequest, MsgInvalidTicketID)
	}

	p, err := h.service.GetTicket(c.Context(), ticketID)
	if err != nil {
		if errors.Is(err, service.ErrTicketNotFound) {
			return fail(c, fiber.StatusNotFound, MsgTicketNotFound)
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("purchase_id", ticketID).
			Msg("failed to get ticket")
		return fail(c, fiber.StatusInternalServerError, MsgInternalError)
	}

	if !visibleTo(principal, p) {
		return fail(c, fiber.StatusNotFound, MsgTicketNotFound)
	}

	return success(c, fiber.Map{"ticket": p.ToResponse(h.service.Now())})
}

// ListChildTickets handles GET /children/:childId/tickets.
func (h *TicketQueryHandler) ListChildTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFrom(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, MsgUnauthorized)
	}

	childID := c.Params("childId")
	if err := h.validator.Var(childID, "entityid"); err != nil {
		return fail(c, fiber.StatusBadRequest, MsgInvalidChildID)
	}

	if child, isChild := principal.(auth.Child); isChild && child.ID != childID {
		return fail(c, fiber.StatusForbidden, MsgForbidden)
	}

	tickets, err := h.service.ListChildTickets(c.Context(), principal.Family(), childID)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("child_id", childID).
			Msg("failed to list child tickets")
		return fail(c, fiber.StatusInternalServerError, MsgInternalError)
	}

	now := h.service.Now()
	out := make([]model.TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, tickets[i].ToResponse(now))
	}

	log.Info().
		Str("child_id", childID).
		Int("tickets_count", len(out)).
		Msg("child tickets retrieved")

	return success(c, fiber.Map{"tickets": out})
}

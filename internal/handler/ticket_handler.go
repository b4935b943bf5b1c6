package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/reward-ticket-service/internal/auth"
	"github.com/fairyhunter13/reward-ticket-service/internal/model"
	"github.com/fairyhunter13/reward-ticket-service/internal/service"
)

// TicketServiceInterface defines the ticket transitions exposed over HTTP.
type TicketServiceInterface interface {
	RequestUse(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error)
	Approve(ctx context.Context, ticketID, parentID, familyID string) (*model.RewardPurchase, error)
	Fulfill(ctx context.Context, ticketID, parentID, familyID string) (*model.RewardPurchase, error)
	Pause(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error)
	Resume(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error)
	SaveProgress(ctx context.Context, ticketID, childID string, elapsedSeconds int) (*model.RewardPurchase, error)
	Complete(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error)
}

// TicketHandler handles HTTP requests for ticket transitions.
type TicketHandler struct {
	service   TicketServiceInterface
	validator *validator.Validate
}

// NewTicketHandler creates a new TicketHandler with the given service and validator.
func NewTicketHandler(svc TicketServiceInterface, v *validator.Validate) *TicketHandler {
	return &TicketHandler{service: svc, validator: v}
}

// formatTicketValidationError picks the client message for a failed request
// body. childId is reported before elapsedSeconds.
func formatTicketValidationError(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return MsgInvalidRequest
	}
	msg := MsgInvalidRequest
	for _, fe := range ve {
		switch fe.Field() {
		case "childId":
			return MsgChildIDRequired
		case "elapsedSeconds":
			msg = MsgElapsedRequired
		}
	}
	return msg
}

// childRequest carries the validated inputs of a child edge.
type childRequest struct {
	ticketID string
	childID  string
	elapsed  int
}

// bindChild runs every local check of a child edge in order: body, fields,
// ticket id, then the child session. It writes the error response itself and
// returns ok=false when the request must stop.
func (h *TicketHandler) bindChild(c *fiber.Ctx, withElapsed bool) (childRequest, bool, error) {
	var (
		childID string
		elapsed *float64
		verr    error
	)

	if withElapsed {
		var req model.SaveProgressRequest
		if err := c.BodyParser(&req); err != nil {
			// A non-numeric elapsedSeconds still decodes the rest of the body,
			// so childId is checked first like any other invalid value.
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) || typeErr.Field != "elapsedSeconds" {
				return childRequest{}, false, fail(c, fiber.StatusBadRequest, MsgInvalidBody)
			}
			req.ElapsedSeconds = nil
		}
		childID, elapsed = req.ChildID, req.ElapsedSeconds
		verr = h.validator.Struct(req)
	} else {
		var req model.ChildActionRequest
		if err := c.BodyParser(&req); err != nil {
			return childRequest{}, false, fail(c, fiber.StatusBadRequest, MsgInvalidBody)
		}
		childID = req.ChildID
		verr = h.validator.Struct(req)
	}
	if verr != nil {
		return childRequest{}, false, failValidation(c, formatTicketValidationError(verr), validationDetails(verr))
	}

	ticketID := c.Params("id")
	if err := h.validator.Var(ticketID, "entityid"); err != nil {
		return childRequest{}, false, fail(c, fiber.StatusBadRequest, MsgInvalidTicketID)
	}

	if _, err := auth.AuthorizeChild(c, childID); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			return childRequest{}, false, fail(c, fiber.StatusForbidden, MsgForbidden)
		}
		return childRequest{}, false, fail(c, fiber.StatusUnauthorized, MsgUnauthorized)
	}

	out := childRequest{ticketID: ticketID, childID: childID}
	if elapsed != nil {
		out.elapsed = int(*elapsed) // whole seconds
	}
	return out, true, nil
}

// bindParent validates the ticket id of a parent edge. Routes put
// Resolver.RequireParent in front, so a missing parent is a wiring error
// and still answers 401.
func (h *TicketHandler) bindParent(c *fiber.Ctx) (string, auth.Parent, bool, error) {
	parent, ok := auth.ParentFrom(c)
	if !ok {
		return "", auth.Parent{}, false, fail(c, fiber.StatusUnauthorized, MsgUnauthorized)
	}
	ticketID := c.Params("id")
	if err := h.validator.Var(ticketID, "entityid"); err != nil {
		return "", auth.Parent{}, false, fail(c, fiber.StatusBadRequest, MsgInvalidTicketID)
	}
	return ticketID, parent, true, nil
}

// handleError maps service errors to responses.
func handleError(c *fiber.Ctx, err error, edge, ticketID, principalID string) error {
	if errors.Is(err, service.ErrTicketNotFound) {
		return fail(c, fiber.StatusNotFound, MsgTicketNotFound)
	}
	var rej *service.RejectionError
	if errors.As(err, &rej) {
		return fail(c, fiber.StatusBadRequest, rej.Message)
	}
	if errors.Is(err, service.ErrInvalidRequest) {
		return fail(c, fiber.StatusBadRequest, MsgInvalidRequest)
	}
	log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Str("edge", edge).
		Str("purchase_id", ticketID).
		Str("principal_id", principalID).
		Msg("ticket transition failed")
	return fail(c, fiber.StatusInternalServerError, MsgInternalError)
}

func logTransition(c *fiber.Ctx, edge string, p *model.RewardPurchase, principalID string) {
	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("edge", edge).
		Str("purchase_id", p.ID).
		Str("status", string(p.Status)).
		Str("principal_id", principalID).
		Msg("ticket transitioned")
}

// RequestUse handles POST /tickets/:id/request-use.
func (h *TicketHandler) RequestUse(c *fiber.Ctx) error {
	req, ok, err := h.bindChild(c, false)
	if !ok {
		return err
	}
	p, err := h.service.RequestUse(c.Context(), req.ticketID, req.childID)
	if err != nil {
		return handleError(c, err, "request_use", req.ticketID, req.childID)
	}
	logTransition(c, "request_use", p, req.childID)
	return success(c, fiber.Map{"purchase_id": p.ID, "status": p.Status})
}

// Approve handles POST /tickets/:id/approve.
func (h *TicketHandler) Approve(c *fiber.Ctx) error {
	ticketID, parent, ok, err := h.bindParent(c)
	if !ok {
		return err
	}
	p, err := h.service.Approve(c.Context(), ticketID, parent.ID, parent.FamilyID)
	if err != nil {
		return handleError(c, err, "approve", ticketID, parent.ID)
	}
	logTransition(c, "approve", p, parent.ID)
	return success(c, fiber.Map{"purchase_id": p.ID, "status": p.Status})
}

// Fulfill handles POST /tickets/:id/fulfill.
func (h *TicketHandler) Fulfill(c *fiber.Ctx) error {
	ticketID, parent, ok, err := h.bindParent(c)
	if !ok {
		return err
	}
	p, err := h.service.Fulfill(c.Context(), ticketID, parent.ID, parent.FamilyID)
	if err != nil {
		return handleError(c, err, "fulfill", ticketID, parent.ID)
	}
	logTransition(c, "fulfill", p, parent.ID)
	return success(c, fiber.Map{"purchase_id": p.ID, "status": p.Status, "message": MsgRewardFulfilled})
}

// Pause handles POST /tickets/:id/pause.
func (h *TicketHandler) Pause(c *fiber.Ctx) error {
	req, ok, err := h.bindChild(c, false)
	if !ok {
		return err
	}
	p, err := h.service.Pause(c.Context(), req.ticketID, req.childID)
	if err != nil {
		return handleError(c, err, "pause", req.ticketID, req.childID)
	}
	logTransition(c, "pause", p, req.childID)

	var pausedAt string
	if p.PausedAt != nil {
		pausedAt = p.PausedAt.UTC().Format(time.RFC3339)
	}
	return success(c, fiber.Map{"purchase_id": p.ID, "paused_at": pausedAt})
}

// Resume handles POST /tickets/:id/resume.
func (h *TicketHandler) Resume(c *fiber.Ctx) error {
	req, ok, err := h.bindChild(c, false)
	if !ok {
		return err
	}
	p, err := h.service.Resume(c.Context(), req.ticketID, req.childID)
	if err != nil {
		return handleError(c, err, "resume", req.ticketID, req.childID)
	}
	logTransition(c, "resume", p, req.childID)
	return success(c, fiber.Map{"purchase_id": p.ID, "status": p.Status})
}

// SaveProgress handles POST /tickets/:id/save-progress.
func (h *TicketHandler) SaveProgress(c *fiber.Ctx) error {
	req, ok, err := h.bindChild(c, true)
	if !ok {
		return err
	}
	p, err := h.service.SaveProgress(c.Context(), req.ticketID, req.childID, req.elapsed)
	if err != nil {
		return handleError(c, err, "save_progress", req.ticketID, req.childID)
	}
	log.Debug().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("purchase_id", p.ID).
		Int("elapsed_seconds", p.ElapsedSeconds).
		Msg("ticket progress saved")
	return success(c, fiber.Map{"purchase_id": p.ID, "elapsed_seconds": p.ElapsedSeconds})
}

// Complete handles POST /tickets/:id/complete.
func (h *TicketHandler) Complete(c *fiber.Ctx) error {
	req, ok, err := h.bindChild(c, false)
	if !ok {
		return err
	}
	p, err := h.service.Complete(c.Context(), req.ticketID, req.childID)
	if err != nil {
		return handleError(c, err, "complete", req.ticketID, req.childID)
	}
	logTransition(c, "complete", p, req.childID)
	return success(c, fiber.Map{"purchase_id": p.ID, "status": p.Status})
}

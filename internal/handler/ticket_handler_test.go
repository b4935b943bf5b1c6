package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/reward-ticket-service/internal/auth"
	"github.com/fairyhunter13/reward-ticket-service/internal/model"
	"github.com/fairyhunter13/reward-ticket-service/internal/service"
	"github.com/fairyhunter13/reward-ticket-service/internal/ticket"
	"github.com/fairyhunter13/reward-ticket-service/internal/validator"
)

// mockTicketService is a mock implementation of TicketServiceInterface.
type mockTicketService struct {
	requestUseFn   func(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error)
	approveFn      func(ctx context.Context, ticketID, parentID, familyID string) (*model.RewardPurchase, error)
	fulfillFn      func(ctx context.Context, ticketID, parentID, familyID string) (*model.RewardPurchase, error)
	pauseFn        func(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error)
	resumeFn       func(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error)
	saveProgressFn func(ctx context.Context, ticketID, childID string, elapsedSeconds int) (*model.RewardPurchase, error)
	completeFn     func(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error)

	calls int
}

func purchase(id string, status ticket.Status) *model.RewardPurchase {
	return &model.RewardPurchase{ID: id, FamilyID: "f1", ChildID: "c1", Status: status}
}

func (m *mockTicketService) RequestUse(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error) {
	m.calls++
	if m.requestUseFn != nil {
		return m.requestUseFn(ctx, ticketID, childID)
	}
	return purchase(ticketID, ticket.StatusUseRequested), nil
}

func (m *mockTicketService) Approve(ctx context.Context, ticketID, parentID, familyID string) (*model.RewardPurchase, error) {
	m.calls++
	if m.approveFn != nil {
		return m.approveFn(ctx, ticketID, parentID, familyID)
	}
	return purchase(ticketID, ticket.StatusInUse), nil
}

func (m *mockTicketService) Fulfill(ctx context.Context, ticketID, parentID, familyID string) (*model.RewardPurchase, error) {
	m.calls++
	if m.fulfillFn != nil {
		return m.fulfillFn(ctx, ticketID, parentID, familyID)
	}
	return purchase(ticketID, ticket.StatusFulfilled), nil
}

func (m *mockTicketService) Pause(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error) {
	m.calls++
	if m.pauseFn != nil {
		return m.pauseFn(ctx, ticketID, childID)
	}
	p := purchase(ticketID, ticket.StatusInUse)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p.PausedAt = &at
	return p, nil
}

func (m *mockTicketService) Resume(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error) {
	m.calls++
	if m.resumeFn != nil {
		return m.resumeFn(ctx, ticketID, childID)
	}
	return purchase(ticketID, ticket.StatusInUse), nil
}

func (m *mockTicketService) SaveProgress(ctx context.Context, ticketID, childID string, elapsedSeconds int) (*model.RewardPurchase, error) {
	m.calls++
	if m.saveProgressFn != nil {
		return m.saveProgressFn(ctx, ticketID, childID, elapsedSeconds)
	}
	p := purchase(ticketID, ticket.StatusInUse)
	p.ElapsedSeconds = elapsedSeconds
	return p, nil
}

func (m *mockTicketService) Complete(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error) {
	m.calls++
	if m.completeFn != nil {
		return m.completeFn(ctx, ticketID, childID)
	}
	return purchase(ticketID, ticket.StatusUsed), nil
}

// withSessions stores fixed principals in place of the auth.Resolver middleware.
func withSessions(parent *auth.Parent, child *auth.Child) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if parent != nil {
			auth.SetParent(c, *parent)
		}
		if child != nil {
			auth.SetChild(c, *child)
		}
		return c.Next()
	}
}

var (
	parentF1 = &auth.Parent{ID: "p1", FamilyID: "f1"}
	childC1  = &auth.Child{ID: "c1", FamilyID: "f1"}
)

func setupTicketTestApp(mockSvc *mockTicketService, parent *auth.Parent, child *auth.Child) *fiber.App {
	app := fiber.New()
	h := NewTicketHandler(mockSvc, validator.New())
	tickets := app.Group("/tickets", withSessions(parent, child))
	tickets.Post("/:id/request-use", h.RequestUse)
	tickets.Post("/:id/approve", h.Approve)
	tickets.Post("/:id/fulfill", h.Fulfill)
	tickets.Post("/:id/pause", h.Pause)
	tickets.Post("/:id/resume", h.Resume)
	tickets.Post("/:id/save-progress", h.SaveProgress)
	tickets.Post("/:id/complete", h.Complete)
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(respBody)
}

func TestComplete_Success(t *testing.T) {
	mockSvc := &mockTicketService{
		completeFn: func(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error) {
			assert.Equal(t, "t1", ticketID)
			assert.Equal(t, "c1", childID)
			return purchase("t1", ticket.StatusUsed), nil
		},
	}
	app := setupTicketTestApp(mockSvc, nil, childC1)

	status, body := post(t, app, "/tickets/t1/complete", `{"childId": "c1"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"success":true,"purchase_id":"t1","status":"used"}`, body)
}

func TestApprove_NoParentSession(t *testing.T) {
	mockSvc := &mockTicketService{}
	app := setupTicketTestApp(mockSvc, nil, childC1)

	status, body := post(t, app, "/tickets/t1/approve", ``)

	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, body)
	assert.Zero(t, mockSvc.calls, "no storage call without a session")
}

func TestApprove_Success(t *testing.T) {
	var gotParent, gotFamily string
	mockSvc := &mockTicketService{
		approveFn: func(ctx context.Context, ticketID, parentID, familyID string) (*model.RewardPurchase, error) {
			gotParent, gotFamily = parentID, familyID
			return purchase(ticketID, ticket.StatusInUse), nil
		},
	}
	app := setupTicketTestApp(mockSvc, parentF1, nil)

	status, body := post(t, app, "/tickets/t1/approve", ``)

	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"success":true,"purchase_id":"t1","status":"in_use"}`, body)
	assert.Equal(t, "p1", gotParent)
	assert.Equal(t, "f1", gotFamily)
}

func TestApprove_InvalidTicketID(t *testing.T) {
	mockSvc := &mockTicketService{}
	app := setupTicketTestApp(mockSvc, parentF1, nil)

	status, body := post(t, app, "/tickets/t1;drop/approve", ``)

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Invalid ticket ID"}`, body)
	assert.Zero(t, mockSvc.calls)
}

func TestFulfill_Twice(t *testing.T) {
	fulfilled := false
	mockSvc := &mockTicketService{
		fulfillFn: func(ctx context.Context, ticketID, parentID, familyID string) (*model.RewardPurchase, error) {
			if fulfilled {
				return nil, service.Reject(ticket.MsgAlreadyFulfilled)
			}
			fulfilled = true
			return purchase(ticketID, ticket.StatusFulfilled), nil
		},
	}
	app := setupTicketTestApp(mockSvc, parentF1, nil)

	status, body := post(t, app, "/tickets/t1/fulfill", ``)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"success":true,"purchase_id":"t1","status":"fulfilled","message":"Reward fulfilled"}`, body)

	status, body = post(t, app, "/tickets/t1/fulfill", ``)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Reward already fulfilled"}`, body)
}

func TestSaveProgress_NegativeElapsed(t *testing.T) {
	mockSvc := &mockTicketService{}
	app := setupTicketTestApp(mockSvc, nil, childC1)

	status, body := post(t, app, "/tickets/t1/save-progress", `{"childId": "c1", "elapsedSeconds": -1}`)

	assert.Equal(t, fiber.StatusBadRequest, status)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &result))
	assert.Equal(t, "Valid elapsed seconds required", result["error"])
	assert.Equal(t, map[string]interface{}{"elapsedSeconds": "gte"}, result["details"])
	assert.Zero(t, mockSvc.calls)
}

func TestSaveProgress_ValidElapsed(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected int
	}{
		{"zero", `{"childId": "c1", "elapsedSeconds": 0}`, 0},
		{"positive", `{"childId": "c1", "elapsedSeconds": 600}`, 600},
		{"fractional_truncated", `{"childId": "c1", "elapsedSeconds": 12.9}`, 12},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got int
			mockSvc := &mockTicketService{
				saveProgressFn: func(ctx context.Context, ticketID, childID string, elapsedSeconds int) (*model.RewardPurchase, error) {
					got = elapsedSeconds
					p := purchase(ticketID, ticket.StatusInUse)
					p.ElapsedSeconds = elapsedSeconds
					return p, nil
				},
			}
			app := setupTicketTestApp(mockSvc, nil, childC1)

			status, body := post(t, app, "/tickets/t1/save-progress", tc.body)

			assert.Equal(t, fiber.StatusOK, status)
			assert.Equal(t, tc.expected, got)
			var result map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(body), &result))
			assert.Equal(t, true, result["success"])
			assert.Equal(t, "t1", result["purchase_id"])
			assert.Equal(t, float64(tc.expected), result["elapsed_seconds"])
		})
	}
}

func TestSaveProgress_InvalidElapsed(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"missing", `{"childId": "c1"}`},
		{"null", `{"childId": "c1", "elapsedSeconds": null}`},
		{"string", `{"childId": "c1", "elapsedSeconds": "abc"}`},
		{"bool", `{"childId": "c1", "elapsedSeconds": true}`},
		{"too_large", `{"childId": "c1", "elapsedSeconds": 1e12}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockSvc := &mockTicketService{}
			app := setupTicketTestApp(mockSvc, nil, childC1)

			status, body := post(t, app, "/tickets/t1/save-progress", tc.body)

			assert.Equal(t, fiber.StatusBadRequest, status)
			var result map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(body), &result))
			assert.Equal(t, "Valid elapsed seconds required", result["error"])
			assert.Zero(t, mockSvc.calls)
		})
	}
}

func TestChildEdges_MissingChildID(t *testing.T) {
	testCases := []struct {
		name string
		path string
		body string
	}{
		{"pause", "/tickets/t1/pause", `{}`},
		{"pause_blank", "/tickets/t1/pause", `{"childId": "   "}`},
		{"save_progress", "/tickets/t1/save-progress", `{"elapsedSeconds": 10}`},
		{"save_progress_bad_elapsed", "/tickets/t1/save-progress", `{"elapsedSeconds": "abc"}`},
		{"request_use", "/tickets/t1/request-use", `{}`},
		{"resume", "/tickets/t1/resume", `{}`},
		{"complete", "/tickets/t1/complete", `{"childId": ""}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockSvc := &mockTicketService{}
			app := setupTicketTestApp(mockSvc, nil, childC1)

			status, body := post(t, app, tc.path, tc.body)

			assert.Equal(t, fiber.StatusBadRequest, status)
			var result map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(body), &result))
			assert.Equal(t, "Child ID required", result["error"])
			assert.Zero(t, mockSvc.calls)
		})
	}
}

func TestChildEdges_InvalidBody(t *testing.T) {
	mockSvc := &mockTicketService{}
	app := setupTicketTestApp(mockSvc, nil, childC1)

	for _, body := range []string{`{"childId": "c1"`, `not json`, `{"childId": 42}`} {
		status, respBody := post(t, app, "/tickets/t1/complete", body)
		assert.Equal(t, fiber.StatusBadRequest, status, body)
		assert.JSONEq(t, `{"error":"Invalid request body"}`, respBody)
	}
	assert.Zero(t, mockSvc.calls)
}

func TestChildEdges_InvalidTicketID(t *testing.T) {
	mockSvc := &mockTicketService{}
	app := setupTicketTestApp(mockSvc, nil, childC1)

	status, body := post(t, app, "/tickets/not%20valid/pause", `{"childId": "c1"}`)

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Invalid ticket ID"}`, body)
	assert.Zero(t, mockSvc.calls)
}

func TestChildEdges_NoChildSession(t *testing.T) {
	mockSvc := &mockTicketService{}
	app := setupTicketTestApp(mockSvc, parentF1, nil)

	status, body := post(t, app, "/tickets/t1/request-use", `{"childId": "c1"}`)

	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, body)
	assert.Zero(t, mockSvc.calls)
}

func TestChildEdges_SessionMismatch(t *testing.T) {
	mockSvc := &mockTicketService{}
	app := setupTicketTestApp(mockSvc, nil, childC1)

	status, body := post(t, app, "/tickets/t1/pause", `{"childId": "c2"}`)

	assert.Equal(t, fiber.StatusForbidden, status)
	assert.JSONEq(t, `{"error":"Forbidden"}`, body)
	assert.Zero(t, mockSvc.calls)
}

func TestPause_Success(t *testing.T) {
	app := setupTicketTestApp(&mockTicketService{}, nil, childC1)

	status, body := post(t, app, "/tickets/t1/pause", `{"childId": "c1"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"success":true,"purchase_id":"t1","paused_at":"2026-03-01T10:00:00Z"}`, body)
}

func TestRequestUse_Success(t *testing.T) {
	app := setupTicketTestApp(&mockTicketService{}, nil, childC1)

	status, body := post(t, app, "/tickets/t1/request-use", `{"childId": "c1"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"success":true,"purchase_id":"t1","status":"use_requested"}`, body)
}

func TestResume_Success(t *testing.T) {
	app := setupTicketTestApp(&mockTicketService{}, nil, childC1)

	status, body := post(t, app, "/tickets/t1/resume", `{"childId": "c1"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"success":true,"purchase_id":"t1","status":"in_use"}`, body)
}

func TestTransition_BusinessRejection(t *testing.T) {
	mockSvc := &mockTicketService{
		resumeFn: func(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error) {
			return nil, service.Reject(ticket.MsgNotPaused)
		},
	}
	app := setupTicketTestApp(mockSvc, nil, childC1)

	status, body := post(t, app, "/tickets/t1/resume", `{"childId": "c1"}`)

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Ticket is not paused"}`, body)
}

func TestTransition_NotFound(t *testing.T) {
	mockSvc := &mockTicketService{
		completeFn: func(ctx context.Context, ticketID, childID string) (*model.RewardPurchase, error) {
			return nil, service.ErrTicketNotFound
		},
	}
	app := setupTicketTestApp(mockSvc, nil, childC1)

	status, body := post(t, app, "/tickets/missing/complete", `{"childId": "c1"}`)

	assert.Equal(t, fiber.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"Ticket not found"}`, body)
}

func TestTransition_InvalidRequestFromService(t *testing.T) {
	mockSvc := &mockTicketService{
		saveProgressFn: func(ctx context.Context, ticketID, childID string, elapsedSeconds int) (*model.RewardPurchase, error) {
			return nil, service.ErrInvalidRequest
		},
	}
	app := setupTicketTestApp(mockSvc, nil, childC1)

	status, body := post(t, app, "/tickets/t1/save-progress", `{"childId": "c1", "elapsedSeconds": 5}`)

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Invalid request"}`, body)
}

func TestTransition_StorageFailure(t *testing.T) {
	mockSvc := &mockTicketService{
		approveFn: func(ctx context.Context, ticketID, parentID, familyID string) (*model.RewardPurchase, error) {
			return nil, errors.New("commit tx: pq: connection reset by peer at 10.0.0.5:5432")
		},
	}
	app := setupTicketTestApp(mockSvc, parentF1, nil)

	status, body := post(t, app, "/tickets/t1/approve", ``)

	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.JSONEq(t, `{"error":"Internal server error"}`, body)
	assert.NotContains(t, body, "10.0.0.5", "internals must not leak")
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/clock"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/queue"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store/memory"
)

type fakeQueue struct {
	allocateFn    func(ctx context.Context) (queue.Allocation, error)
	registerFn    func(ctx context.Context, queueNumber int, input queue.Registration) (models.Patient, error)
	assignFn      func(ctx context.Context, patientID, roomID string) (queue.Assignment, error)
	assignNextFn  func(ctx context.Context, roomID string) (queue.Assignment, error)
	completeFn    func(ctx context.Context, roomID string) (queue.Assignment, error)
	pauseFn       func(ctx context.Context, roomID string) (string, error)
	cancelFn      func(ctx context.Context, patientID, reason string) (models.Patient, error)
	resetFn       func(ctx context.Context) (queue.ResetResult, error)
	reconcileFn   func(ctx context.Context) (queue.ReconcileResult, error)
	getPatientFn  func(ctx context.Context, patientID string) (models.Patient, error)
	listPatientFn func(ctx context.Context, day string) ([]models.Patient, error)
	listRoomsFn   func(ctx context.Context) ([]models.Room, error)
	boardFn       func(ctx context.Context) (queue.Board, error)
	statsFn       func(ctx context.Context, day string) (queue.Stats, error)
}

func (f fakeQueue) Allocate(ctx context.Context) (queue.Allocation, error) {
	if f.allocateFn == nil {
		return queue.Allocation{}, nil
	}
	return f.allocateFn(ctx)
}

func (f fakeQueue) Register(ctx context.Context, queueNumber int, input queue.Registration) (models.Patient, error) {
	if f.registerFn == nil {
		return models.Patient{}, nil
	}
	return f.registerFn(ctx, queueNumber, input)
}

func (f fakeQueue) Assign(ctx context.Context, patientID, roomID string) (queue.Assignment, error) {
	if f.assignFn == nil {
		return queue.Assignment{}, nil
	}
	return f.assignFn(ctx, patientID, roomID)
}

func (f fakeQueue) AssignNext(ctx context.Context, roomID string) (queue.Assignment, error) {
	if f.assignNextFn == nil {
		return queue.Assignment{}, nil
	}
	return f.assignNextFn(ctx, roomID)
}

func (f fakeQueue) Complete(ctx context.Context, roomID string) (queue.Assignment, error) {
	if f.completeFn == nil {
		return queue.Assignment{}, nil
	}
	return f.completeFn(ctx, roomID)
}

func (f fakeQueue) TogglePause(ctx context.Context, roomID string) (string, error) {
	if f.pauseFn == nil {
		return models.RoomPaused, nil
	}
	return f.pauseFn(ctx, roomID)
}

func (f fakeQueue) Cancel(ctx context.Context, patientID, reason string) (models.Patient, error) {
	if f.cancelFn == nil {
		return models.Patient{}, nil
	}
	return f.cancelFn(ctx, patientID, reason)
}

func (f fakeQueue) RunDailyReset(ctx context.Context) (queue.ResetResult, error) {
	if f.resetFn == nil {
		return queue.ResetResult{}, nil
	}
	return f.resetFn(ctx)
}

func (f fakeQueue) Reconcile(ctx context.Context) (queue.ReconcileResult, error) {
	if f.reconcileFn == nil {
		return queue.ReconcileResult{}, nil
	}
	return f.reconcileFn(ctx)
}

func (f fakeQueue) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	if f.getPatientFn == nil {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return f.getPatientFn(ctx, patientID)
}

func (f fakeQueue) ListPatients(ctx context.Context, day string) ([]models.Patient, error) {
	if f.listPatientFn == nil {
		return nil, nil
	}
	return f.listPatientFn(ctx, day)
}

func (f fakeQueue) ListRooms(ctx context.Context) ([]models.Room, error) {
	if f.listRoomsFn == nil {
		return nil, nil
	}
	return f.listRoomsFn(ctx)
}

func (f fakeQueue) Board(ctx context.Context) (queue.Board, error) {
	if f.boardFn == nil {
		return queue.Board{}, nil
	}
	return f.boardFn(ctx)
}

func (f fakeQueue) Stats(ctx context.Context, day string) (queue.Stats, error) {
	if f.statsFn == nil {
		return queue.Stats{}, nil
	}
	return f.statsFn(ctx, day)
}

func serve(h *Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Request-ID", "req-1")
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestAllocateSuccess(t *testing.T) {
	h := NewHandler(fakeQueue{
		allocateFn: func(ctx context.Context) (queue.Allocation, error) {
			return queue.Allocation{QueueNumber: 4, PatientID: "p-4", Day: "2026-04-02"}, nil
		},
	}, nil)

	resp := serve(h, http.MethodPost, "/api/queue/allocate", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	var allocation queue.Allocation
	if err := json.NewDecoder(resp.Body).Decode(&allocation); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if allocation.QueueNumber != 4 || allocation.PatientID != "p-4" {
		t.Fatalf("unexpected allocation: %+v", allocation)
	}
}

func TestAllocateQueueFull(t *testing.T) {
	h := NewHandler(fakeQueue{
		allocateFn: func(ctx context.Context) (queue.Allocation, error) {
			return queue.Allocation{}, fmt.Errorf("%w: 2026-04-02 reached 999", store.ErrQueueFull)
		},
	}, nil)

	resp := serve(h, http.MethodPost, "/api/queue/allocate", nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	body := decodeError(t, resp)
	if body.Error.Code != "queue_full" || body.RequestID != "req-1" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestAllocateMethodNotAllowed(t *testing.T) {
	resp := serve(NewHandler(fakeQueue{}, nil), http.MethodGet, "/api/queue/allocate", nil)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", resp.Code)
	}
}

func TestRegisterPassesFields(t *testing.T) {
	var got queue.Registration
	var gotNumber int
	h := NewHandler(fakeQueue{
		registerFn: func(ctx context.Context, queueNumber int, input queue.Registration) (models.Patient, error) {
			got = input
			gotNumber = queueNumber
			return models.Patient{PatientID: "p-2", QueueNumber: queueNumber, Status: models.StatusRegistered}, nil
		},
	}, nil)

	resp := serve(h, http.MethodPost, "/api/patients/register", map[string]interface{}{
		"queue_number": 2,
		"name":         "Ani",
		"phone":        "081234567890",
		"age":          34,
		"gender":       "female",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if gotNumber != 2 || got.Name != "Ani" || got.Age != 34 || got.Notes != "" {
		t.Fatalf("unexpected registration: %d %+v", gotNumber, got)
	}
}

func TestRegisterRejectsBadPayload(t *testing.T) {
	h := NewHandler(fakeQueue{}, nil)

	resp := serve(h, http.MethodPost, "/api/patients/register", map[string]interface{}{"queue_number": 2, "unknown": true})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown field, got %d", resp.Code)
	}
	resp = serve(h, http.MethodPost, "/api/patients/register", map[string]interface{}{"name": "Ani"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without queue number, got %d", resp.Code)
	}
}

func TestRegisterNotFound(t *testing.T) {
	h := NewHandler(fakeQueue{
		registerFn: func(ctx context.Context, queueNumber int, input queue.Registration) (models.Patient, error) {
			return models.Patient{}, store.ErrPatientNotFound
		},
	}, nil)

	resp := serve(h, http.MethodPost, "/api/patients/register", map[string]interface{}{"queue_number": 9})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestAssignRoutesByPayload(t *testing.T) {
	var explicit, next string
	h := NewHandler(fakeQueue{
		assignFn: func(ctx context.Context, patientID, roomID string) (queue.Assignment, error) {
			explicit = patientID + "@" + roomID
			return queue.Assignment{}, nil
		},
		assignNextFn: func(ctx context.Context, roomID string) (queue.Assignment, error) {
			next = roomID
			return queue.Assignment{}, nil
		},
	}, nil)

	if resp := serve(h, http.MethodPost, "/api/rooms/R1/assign", map[string]string{"patient_id": "p-7"}); resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if resp := serve(h, http.MethodPost, "/api/rooms/R2/assign", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if explicit != "p-7@R1" || next != "R2" {
		t.Fatalf("unexpected routing: explicit=%q next=%q", explicit, next)
	}
}

func TestRoomActionErrors(t *testing.T) {
	h := NewHandler(fakeQueue{
		assignNextFn: func(ctx context.Context, roomID string) (queue.Assignment, error) {
			return queue.Assignment{}, store.ErrPatientNotEligible
		},
		completeFn: func(ctx context.Context, roomID string) (queue.Assignment, error) {
			return queue.Assignment{}, store.ErrEmptyRoom
		},
		pauseFn: func(ctx context.Context, roomID string) (string, error) {
			return "", store.ErrRoomBusy
		},
	}, nil)

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/api/rooms/R1/assign", http.StatusConflict, "patient_not_eligible"},
		{"/api/rooms/R1/complete", http.StatusConflict, "empty_room"},
		{"/api/rooms/R1/pause", http.StatusConflict, "room_busy"},
		{"/api/rooms/R1/explode", http.StatusNotFound, "not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			resp := serve(h, http.MethodPost, tc.path, nil)
			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, resp.Code)
			}
			if body := decodeError(t, resp); body.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, body.Error.Code)
			}
		})
	}
}

func TestPauseReturnsStatus(t *testing.T) {
	resp := serve(NewHandler(fakeQueue{}, nil), http.MethodPost, "/api/rooms/R3/pause", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var body pauseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.RoomID != "R3" || body.Status != models.RoomPaused {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestCancelPassesReason(t *testing.T) {
	var reason string
	h := NewHandler(fakeQueue{
		cancelFn: func(ctx context.Context, patientID, r string) (models.Patient, error) {
			reason = r
			return models.Patient{PatientID: patientID, Status: models.StatusCancelled}, nil
		},
	}, nil)

	resp := serve(h, http.MethodPost, "/api/patients/p-1/cancel", map[string]string{"reason": "no-show"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if reason != "no-show" {
		t.Fatalf("expected reason no-show, got %q", reason)
	}
}

func TestGetPatientNotFound(t *testing.T) {
	resp := serve(NewHandler(fakeQueue{}, nil), http.MethodGet, "/api/patients/missing", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestListPatientsEmptyArray(t *testing.T) {
	var day string
	h := NewHandler(fakeQueue{
		listPatientFn: func(ctx context.Context, d string) ([]models.Patient, error) {
			day = d
			return nil, nil
		},
	}, nil)

	resp := serve(h, http.MethodGet, "/api/patients?day=2026-04-01", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if got := bytes.TrimSpace(resp.Body.Bytes()); string(got) != "[]" {
		t.Fatalf("expected empty array, got %s", got)
	}
	if day != "2026-04-01" {
		t.Fatalf("expected day to be forwarded, got %q", day)
	}
}

func TestUnavailableMapsTo503(t *testing.T) {
	h := NewHandler(fakeQueue{
		resetFn: func(ctx context.Context) (queue.ResetResult, error) {
			return queue.ResetResult{}, fmt.Errorf("begin: %w", store.ErrUnavailable)
		},
	}, nil)

	resp := serve(h, http.MethodPost, "/api/reset", nil)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
}

func TestEndToEndAgainstMemoryStore(t *testing.T) {
	svc := queue.NewService(memory.NewStore(), queue.Options{
		Clock:    clock.NewFixed(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)),
		Location: time.UTC,
	})
	if _, err := svc.ProvisionRooms(context.Background(), 1, nil); err != nil {
		t.Fatalf("provision rooms: %v", err)
	}
	h := NewHandler(svc, nil)

	for i := 0; i < 2; i++ {
		if resp := serve(h, http.MethodPost, "/api/queue/allocate", nil); resp.Code != http.StatusCreated {
			t.Fatalf("allocate: expected 201, got %d", resp.Code)
		}
	}
	resp := serve(h, http.MethodPost, "/api/patients/register", map[string]interface{}{
		"queue_number": 2, "name": "Budi", "phone": "081234567890", "age": 51, "gender": "male",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d", resp.Code)
	}

	resp = serve(h, http.MethodPost, "/api/rooms/R1/assign", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("assign: expected 200, got %d", resp.Code)
	}
	var assignment queue.Assignment
	if err := json.NewDecoder(resp.Body).Decode(&assignment); err != nil {
		t.Fatalf("decode assignment: %v", err)
	}
	if assignment.Room.CurrentPatient == nil || assignment.Room.CurrentPatient.QueueNumber != 2 {
		t.Fatalf("unexpected assignment: %+v", assignment)
	}

	if resp := serve(h, http.MethodPost, "/api/rooms/R1/assign", nil); resp.Code != http.StatusConflict {
		t.Fatalf("second assign: expected 409, got %d", resp.Code)
	}
	if resp := serve(h, http.MethodPost, "/api/rooms/R1/complete", nil); resp.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d", resp.Code)
	}

	resp = serve(h, http.MethodGet, "/api/board", nil)
	var board queue.Board
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		t.Fatalf("decode board: %v", err)
	}
	if len(board.Waiting) != 1 || board.Rooms[0].Status != models.RoomAvailable {
		t.Fatalf("unexpected board: %+v", board)
	}
}

func TestRateLimiterBlocksBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 2})
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes: %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.2, 10.0.0.1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", resp.Code)
	}
}

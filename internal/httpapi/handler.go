package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/queue"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

// QueueService is the part of the queue core exposed over HTTP.
type QueueService interface {
	Allocate(ctx context.Context) (queue.Allocation, error)
	Register(ctx context.Context, queueNumber int, input queue.Registration) (models.Patient, error)
	Assign(ctx context.Context, patientID, roomID string) (queue.Assignment, error)
	AssignNext(ctx context.Context, roomID string) (queue.Assignment, error)
	Complete(ctx context.Context, roomID string) (queue.Assignment, error)
	TogglePause(ctx context.Context, roomID string) (string, error)
	Cancel(ctx context.Context, patientID, reason string) (models.Patient, error)
	RunDailyReset(ctx context.Context) (queue.ResetResult, error)
	Reconcile(ctx context.Context) (queue.ReconcileResult, error)
	GetPatient(ctx context.Context, patientID string) (models.Patient, error)
	ListPatients(ctx context.Context, day string) ([]models.Patient, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	Board(ctx context.Context) (queue.Board, error)
	Stats(ctx context.Context, day string) (queue.Stats, error)
}

type Handler struct {
	queue  QueueService
	logger *zap.Logger
}

type registerRequest struct {
	QueueNumber int    `json:"queue_number"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Age         int    `json:"age"`
	Gender      string `json:"gender"`
	Notes       string `json:"notes"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type assignRequest struct {
	PatientID string `json:"patient_id"`
}

type pauseResponse struct {
	RoomID string `json:"room_id"`
	Status string `json:"status"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(svc QueueService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{queue: svc, logger: logger}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/queue/allocate", h.handleAllocate)
	mux.HandleFunc("/api/patients/register", h.handleRegister)
	mux.HandleFunc("/api/patients", h.handlePatients)
	mux.HandleFunc("/api/patients/", h.handlePatientActions)
	mux.HandleFunc("/api/rooms", h.handleRooms)
	mux.HandleFunc("/api/rooms/", h.handleRoomActions)
	mux.HandleFunc("/api/board", h.handleBoard)
	mux.HandleFunc("/api/stats", h.handleStats)
	mux.HandleFunc("/api/reset", h.handleReset)
	mux.HandleFunc("/api/reconcile", h.handleReconcile)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	allocation, err := h.queue.Allocate(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, allocation)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req registerRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	if req.QueueNumber <= 0 {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "queue_number is required")
		return
	}

	patient, err := h.queue.Register(r.Context(), req.QueueNumber, queue.Registration{
		Name:   req.Name,
		Phone:  req.Phone,
		Age:    req.Age,
		Gender: req.Gender,
		Notes:  req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *Handler) handlePatients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	patients, err := h.queue.ListPatients(r.Context(), strings.TrimSpace(r.URL.Query().Get("day")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if patients == nil {
		patients = []models.Patient{}
	}
	writeJSON(w, http.StatusOK, patients)
}

// handlePatientActions serves /api/patients/{id} and /api/patients/{id}/cancel.
func (h *Handler) handlePatientActions(w http.ResponseWriter, r *http.Request) {
	patientID, action, ok := splitResource(r.URL.Path, "/api/patients/")
	if !ok {
		writeError(w, requestID(r), http.StatusNotFound, "not_found", "route not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		patient, err := h.queue.GetPatient(r.Context(), patientID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, patient)
	case "cancel":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req cancelRequest
		if !decodeRequest(w, r, &req, true) {
			return
		}
		patient, err := h.queue.Cancel(r.Context(), patientID, req.Reason)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, patient)
	default:
		writeError(w, requestID(r), http.StatusNotFound, "not_found", "route not found")
	}
}

func (h *Handler) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rooms, err := h.queue.ListRooms(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// handleRoomActions serves POST /api/rooms/{id}/assign|complete|pause.
func (h *Handler) handleRoomActions(w http.ResponseWriter, r *http.Request) {
	roomID, action, ok := splitResource(r.URL.Path, "/api/rooms/")
	if !ok || action == "" {
		writeError(w, requestID(r), http.StatusNotFound, "not_found", "route not found")
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "assign":
		var req assignRequest
		if !decodeRequest(w, r, &req, true) {
			return
		}
		var assignment queue.Assignment
		var err error
		if patientID := strings.TrimSpace(req.PatientID); patientID != "" {
			assignment, err = h.queue.Assign(r.Context(), patientID, roomID)
		} else {
			assignment, err = h.queue.AssignNext(r.Context(), roomID)
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, assignment)
	case "complete":
		assignment, err := h.queue.Complete(r.Context(), roomID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, assignment)
	case "pause":
		status, err := h.queue.TogglePause(r.Context(), roomID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pauseResponse{RoomID: roomID, Status: status})
	default:
		writeError(w, requestID(r), http.StatusNotFound, "not_found", "route not found")
	}
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	board, err := h.queue.Board(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, err := h.queue.Stats(r.Context(), strings.TrimSpace(r.URL.Query().Get("day")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	result, err := h.queue.RunDailyReset(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	result, err := h.queue.Reconcile(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	writeError(w, requestID(r), status, code, msg)
}

// splitResource turns "/prefix/{id}/{action}" into its id and optional action.
func splitResource(path, prefix string) (string, string, bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}, allowEmpty bool) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-ID")); id != "" {
		return id
	}
	return uuid.NewString()
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, store.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found", "patient not found"
	case errors.Is(err, store.ErrRoomNotFound):
		return http.StatusNotFound, "room_not_found", "room not found"
	case errors.Is(err, store.ErrQueueFull):
		return http.StatusConflict, "queue_full", "queue is full for today, try again tomorrow"
	case errors.Is(err, store.ErrRoomNotAvailable):
		return http.StatusConflict, "room_not_available", "room is not available"
	case errors.Is(err, store.ErrPatientNotEligible):
		return http.StatusConflict, "patient_not_eligible", "patient is not waiting for a room"
	case errors.Is(err, store.ErrEmptyRoom):
		return http.StatusConflict, "empty_room", "room has no current patient"
	case errors.Is(err, store.ErrRoomBusy):
		return http.StatusConflict, "room_busy", "room is busy"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "patient state does not allow this action"
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable", "service unavailable, try again"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

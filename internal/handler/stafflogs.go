package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/somsri-pos/api/internal/database"
	"github.com/somsri-pos/api/internal/middleware"
)

// StaffLogStore defines the database methods needed by staff log handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type StaffLogStore interface {
	ListStaffLogs(ctx context.Context, arg database.ListStaffLogsParams) ([]database.ListStaffLogsRow, error)
	CountStaffLogs(ctx context.Context, arg database.CountStaffLogsParams) (int64, error)
}

// StaffLogHandler serves the audit trail written by sale and stock operations.
type StaffLogHandler struct {
	store StaffLogStore
}

// NewStaffLogHandler creates a new StaffLogHandler.
func NewStaffLogHandler(store StaffLogStore) *StaffLogHandler {
	return &StaffLogHandler{store: store}
}

// RegisterRoutes registers staff log endpoints on the given Chi router.
// The router group is expected to be gated to admins.
func (h *StaffLogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
}

type staffLogResponse struct {
	ID            int64           `json:"id"`
	StaffID       int64           `json:"staffId"`
	StaffName     string          `json:"staffName"`
	StaffUsername string          `json:"staffUsername"`
	Action        string          `json:"action"`
	Details       json.RawMessage `json:"details"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type staffLogListResponse struct {
	Data     []staffLogResponse `json:"data"`
	Total    int64              `json:"total"`
	Limit    int32              `json:"limit"`
	Offset   int32              `json:"offset"`
	NextPage *int32             `json:"nextPage"`
}

// List returns the shop's audit log, newest first. Supports staffId and
// action (substring match) filters plus limit/offset pagination.
func (h *StaffLogHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	limit, offset := parsePagination(r)

	var staffID pgtype.Int8
	if s := r.URL.Query().Get("staffId"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid staffId"})
			return
		}
		staffID = pgtype.Int8{Int64: id, Valid: true}
	}
	action := textParam(r, "action")

	logs, err := h.store.ListStaffLogs(r.Context(), database.ListStaffLogsParams{
		ShopID:  claims.ShopID,
		StaffID: staffID,
		Action:  action,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		log.Printf("ERROR: failed to list staff logs: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list staff logs"})
		return
	}

	total, err := h.store.CountStaffLogs(r.Context(), database.CountStaffLogsParams{
		ShopID:  claims.ShopID,
		StaffID: staffID,
		Action:  action,
	})
	if err != nil {
		log.Printf("ERROR: failed to count staff logs: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to count staff logs"})
		return
	}

	data := make([]staffLogResponse, 0, len(logs))
	for _, l := range logs {
		details := json.RawMessage(l.Details)
		if len(details) == 0 {
			details = json.RawMessage("null")
		}
		data = append(data, staffLogResponse{
			ID:            l.ID,
			StaffID:       l.StaffID,
			StaffName:     l.StaffName,
			StaffUsername: l.StaffUsername,
			Action:        l.Action,
			Details:       details,
			CreatedAt:     l.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, staffLogListResponse{
		Data:     data,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		NextPage: nextPageFor(limit, offset, total),
	})
}

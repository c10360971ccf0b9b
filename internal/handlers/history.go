package handlers

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/papertrade/apiserver/internal/services"
	"github.com/papertrade/apiserver/types"
	"go.uber.org/zap"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// HistoryHandler serves the ledger of the current user.
type HistoryHandler struct {
	ledger     *services.LedgerService
	statements *services.StatementService
}

func NewHistoryHandler(ledger *services.LedgerService, statements *services.StatementService) *HistoryHandler {
	return &HistoryHandler{
		ledger:     ledger,
		statements: statements,
	}
}

// HistoryRouter registers history and statement routes on the given router.
func HistoryRouter(
	r chi.Router,
	ledger *services.LedgerService,
	statements *services.StatementService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewHistoryHandler(ledger, statements)

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}
		r.Get("/", handler.ListHistory)
		r.Get("/statement.csv", handler.DownloadStatement)
		r.Post("/export", handler.ExportHistory)
		r.Get("/exports/{name}", handler.GetExport)
	})
}

// HistoryResponse wraps the user's ledger entries in execution order. The
// paging fields are set only when the request asked for a page.
type HistoryResponse struct {
	Items []types.Transaction `json:"items"`
	Page  int                 `json:"page,omitempty"`
	Limit int                 `json:"limit,omitempty"`
	Total int                 `json:"total,omitempty"`
}

// ExportResponse carries the object key of an exported statement.
type ExportResponse struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if !wantsPage(r) {
		items, err := h.ledger.History(r.Context(), userID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, HistoryResponse{Items: items})
		return
	}

	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.ledger.HistoryPage(r.Context(), userID, offset, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// DownloadStatement streams the ledger as CSV without storing it.
func (h *HistoryHandler) DownloadStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	setStatementHeaders(w, "statement.csv")
	if _, err := h.statements.Write(r.Context(), userID, w); err != nil {
		// Headers are already sent; the truncated body is all we can signal.
		zap.L().Error("Failed to stream statement", zap.Int("user_id", userID), zap.Error(err))
	}
}

func (h *HistoryHandler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	key, err := h.statements.Export(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ExportResponse{Key: key, Name: services.StatementName(key)})
}

func (h *HistoryHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	rc, err := h.statements.Open(r.Context(), userID, name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	setStatementHeaders(w, name)
	if _, err := io.Copy(w, rc); err != nil {
		zap.L().Warn("Failed to send statement", zap.String("name", name), zap.Error(err))
	}
}

// setStatementHeaders marks a CSV statement as a private download that no
// cache may keep.
func setStatementHeaders(w http.ResponseWriter, name string) {
	h := w.Header()
	h.Set("Content-Type", "text/csv")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	h.Set("Cache-Control", "private, no-store")
}

func wantsPage(r *http.Request) bool {
	q := r.URL.Query()
	return q.Has("page") || q.Has("limit") || q.Has("per_page")
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}
	if page > math.MaxInt/limit {
		return 0, 0, 0, errors.New("invalid page")
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

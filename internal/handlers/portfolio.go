package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/papertrade/apiserver/internal/services"
)

// PortfolioHandler serves the valuation of the current user's holdings.
type PortfolioHandler struct {
	portfolio *services.PortfolioService
}

func NewPortfolioHandler(portfolio *services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio}
}

// PortfolioRouter registers portfolio routes on the given router.
func PortfolioRouter(r chi.Router, portfolio *services.PortfolioService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewPortfolioHandler(portfolio)
	if authMiddleware != nil {
		r.With(authMiddleware).Get("/", handler.GetPortfolio)
	} else {
		r.Get("/", handler.GetPortfolio)
	}
}

func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	portfolio, err := h.portfolio.Project(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolio)
}

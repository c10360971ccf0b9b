package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/papertrade/apiserver/internal/services"
)

// QuoteRouter registers the quote lookup route on the given router.
func QuoteRouter(r chi.Router, trading *services.TradingService, authMiddleware func(http.Handler) http.Handler) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		quote, err := trading.Quote(r.Context(), chi.URLParam(r, "symbol"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, quote)
	}

	if authMiddleware != nil {
		r.With(authMiddleware).Get("/{symbol}", handler)
	} else {
		r.Get("/{symbol}", handler)
	}
}

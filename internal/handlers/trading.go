package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/papertrade/apiserver/internal/services"
	"github.com/papertrade/apiserver/types"
)

// TradingHandler provides HTTP handlers for buy and sell orders.
type TradingHandler struct {
	trading *services.TradingService
}

// NewTradingHandler constructs a handler with the provided trading service.
func NewTradingHandler(trading *services.TradingService) *TradingHandler {
	return &TradingHandler{trading: trading}
}

// TradingRouter registers trade routes on the given router. Every route
// requires authentication.
func TradingRouter(r chi.Router, trading *services.TradingService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTradingHandler(trading)

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}
		r.Post("/buy", handler.Buy)
		r.Post("/sell", handler.Sell)
	})
}

func (h *TradingHandler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req BuyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	entry, err := h.trading.Buy(r.Context(), userID, req.Symbol, req.Shares)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *TradingHandler) Sell(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req SellRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	entry, err := h.trading.Sell(r.Context(), userID, req.Symbol, req.Shares)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// BuyRequest is the payload of POST /trades/buy.
type BuyRequest struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

func (req BuyRequest) Validate() error {
	return validateOrderRequest(req.Symbol, req.Shares)
}

// SellRequest is the payload of POST /trades/sell.
type SellRequest struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

func (req SellRequest) Validate() error {
	return validateOrderRequest(req.Symbol, req.Shares)
}

func validateOrderRequest(symbol string, shares int64) error {
	if strings.TrimSpace(symbol) == "" {
		return fmt.Errorf("%w: symbol is required", types.ErrValidation)
	}
	if shares <= 0 {
		return fmt.Errorf("%w: shares must be a positive integer", types.ErrValidation)
	}
	return nil
}

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront-checkout/internal/core/domain"
	"storefront-checkout/internal/core/ports"
	"storefront-checkout/internal/observability"
)

const maxBodyBytes = 1 << 20

// CheckoutHandler exposes the checkout service over HTTP.
type CheckoutHandler struct {
	service ports.CheckoutService
	logger  *slog.Logger
}

func NewCheckoutHandler(service ports.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		logger:  logger,
	}
}

// The request schemas have no price field: the amount always comes from the catalog.
type createOrderRequest struct {
	GameID string `json:"gameId"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

type captureOrderRequest struct {
	OrderID       string `json:"orderId"`
	GameID        string `json:"gameId"`
	UserID        string `json:"userId"`
	PaymentMethod string `json:"paymentMethod"`
}

type captureOrderResponse struct {
	Success  bool            `json:"success"`
	Order    json.RawMessage `json:"order"`
	Amount   string          `json:"amount"`
	Currency string          `json:"currency"`
}

type entitlementResponse struct {
	GameID    string `json:"gameId"`
	Purchased bool   `json:"purchased"`
}

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *CheckoutHandler) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFrom(r.Context(), h.logger)

	var req createOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, logger, "create_order", domain.NewValidationError("invalid request body"))
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req.GameID)
	if err != nil {
		h.writeError(w, logger, "create_order", err)
		return
	}

	observability.RecordCheckoutOutcome("create_order", "ok")
	h.writeJSON(w, logger, http.StatusOK, createOrderResponse{ID: order.ID})
}

func (h *CheckoutHandler) HandleCaptureOrder(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFrom(r.Context(), h.logger)

	var req captureOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, logger, "capture_order", domain.NewValidationError("invalid request body"))
		return
	}

	result, err := h.service.CaptureOrder(r.Context(), domain.CaptureRequest{
		OrderID:       req.OrderID,
		ProductID:     req.GameID,
		UserID:        req.UserID,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.writeError(w, logger, "capture_order", err)
		return
	}

	observability.RecordCheckoutOutcome("capture_order", "ok")
	h.writeJSON(w, logger, http.StatusOK, captureOrderResponse{
		Success:  result.Success,
		Order:    result.Raw,
		Amount:   result.Settled.Value(),
		Currency: result.Settled.Currency,
	})
}

// HandleEntitlement answers whether the authenticated user owns {gameId}.
func (h *CheckoutHandler) HandleEntitlement(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFrom(r.Context(), h.logger)

	userID, ok := SubjectFrom(r.Context())
	if !ok {
		writeJSONError(w, "Unauthorized", http.StatusUnauthorized, logger)
		return
	}
	gameID := chi.URLParam(r, "gameId")

	owned, err := h.service.HasPurchased(r.Context(), userID, gameID)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeJSONError(w, err.Error(), http.StatusBadRequest, logger)
			return
		}
		logger.Error("entitlement check failed", "game_id", gameID, "error", err)
		writeJSONError(w, "service temporarily unavailable", http.StatusServiceUnavailable, logger)
		return
	}

	h.writeJSON(w, logger, http.StatusOK, entitlementResponse{GameID: gameID, Purchased: owned})
}

// writeError maps checkout failures onto the 400 envelope. Only the public
// message leaves the process; causes are logged.
func (h *CheckoutHandler) writeError(w http.ResponseWriter, logger *slog.Logger, operation string, err error) {
	code := domain.Code(err)
	observability.RecordCheckoutOutcome(operation, code)

	var derr *domain.Error
	if !errors.As(err, &derr) {
		logger.Error("unexpected checkout error", "operation", operation, "error", err)
		h.writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: "Unexpected error, please try again", Code: code})
		return
	}

	switch {
	case errors.Is(err, domain.ErrLedgerWrite), errors.Is(err, domain.ErrOrderMismatch):
		logger.Error("checkout requires manual reconciliation", "operation", operation, "code", code, "error", derr.Cause)
	case errors.Is(err, domain.ErrAuthentication), errors.Is(err, domain.ErrUpstream):
		logger.Warn("payment processor failure", "operation", operation, "error", derr.Cause)
	case errors.Is(err, domain.ErrNotFound):
		logger.Info("game lookup failed", "operation", operation, "error", derr.Cause)
	default:
		logger.Debug("checkout rejected", "operation", operation, "code", code, "error", err)
	}

	h.writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: derr.Message, Code: code})
}

func (h *CheckoutHandler) writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write json response", "error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// writeJSONError is a helper for sending errors in JSON format.
func writeJSONError(w http.ResponseWriter, message string, status int, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		logger.Error("Failed to write JSON error response", "error", err)
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront-checkout/internal/core/domain"
	"storefront-checkout/internal/core/ports"
)

var tracer = otel.Tracer("storefront-checkout/internal/app")

// recordTimeout bounds the post-capture ledger write and event publish. Both
// run detached from the request once the processor has taken the money.
const recordTimeout = 10 * time.Second

// Pricing is the currency conversion applied to catalog prices.
type Pricing struct {
	// Rate is local currency units per settlement currency unit.
	Rate               decimal.Decimal
	SettlementCurrency string
}

// service is the implementation of the CheckoutService port
type service struct {
	catalog   ports.ProductCatalog
	ledger    ports.OrderLedger
	tokens    ports.TokenProvider
	processor ports.PaymentProcessor
	broker    ports.MessageBroker
	pricing   Pricing
	logger    *slog.Logger
}

// NewCheckoutService wires the checkout core to its collaborators.
func NewCheckoutService(
	catalog ports.ProductCatalog,
	ledger ports.OrderLedger,
	tokens ports.TokenProvider,
	processor ports.PaymentProcessor,
	broker ports.MessageBroker,
	pricing Pricing,
	logger *slog.Logger,
) ports.CheckoutService {
	return &service{
		catalog:   catalog,
		ledger:    ledger,
		tokens:    tokens,
		processor: processor,
		broker:    broker,
		pricing:   pricing,
		logger:    logger,
	}
}

// CreateOrder prices productID from the catalog and registers a processor
// order for that amount. Nothing is written to the ledger.
func (s *service) CreateOrder(ctx context.Context, productID string) (*domain.ProcessorOrder, error) {
	ctx, span := tracer.Start(ctx, "checkout.CreateOrder", trace.WithAttributes(attribute.String("game.id", productID)))
	defer span.End()

	if blank(productID) {
		return nil, s.fail(span, domain.NewValidationError("Game ID is required"))
	}

	display, err := s.catalog.PriceOf(ctx, productID)
	if err != nil {
		return nil, s.fail(span, domain.NewNotFoundError(err))
	}
	local, err := domain.ParseDisplayPrice(display)
	if err != nil {
		return nil, s.fail(span, domain.NewNotFoundError(err))
	}
	amount := domain.Convert(local, s.pricing.Rate, s.pricing.SettlementCurrency)
	span.SetAttributes(attribute.String("order.amount", amount.Value()), attribute.String("order.currency", amount.Currency))

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, s.fail(span, domain.NewAuthenticationError(err))
	}

	order, err := s.processor.CreateOrder(ctx, token, amount, productID)
	if err != nil {
		return nil, s.fail(span, domain.NewUpstreamError("Failed to create payment order", err))
	}
	if order.ID == "" {
		return nil, s.fail(span, domain.NewUpstreamError("Failed to create payment order", errors.New("processor returned an empty order id")))
	}

	s.logger.InfoContext(ctx, "processor order created",
		"processor_order_id", order.ID,
		"game_id", productID,
		"amount", amount.Value(),
		"currency", amount.Currency,
	)
	return order, nil
}

// CaptureOrder captures an approved processor order and records the purchase.
// A ledger entry is written only when the processor reports the capture as
// completed, using the processor's settled amount.
func (s *service) CaptureOrder(ctx context.Context, req domain.CaptureRequest) (*domain.CaptureResult, error) {
	ctx, span := tracer.Start(ctx, "checkout.CaptureOrder", trace.WithAttributes(
		attribute.String("processor.order_id", req.OrderID),
		attribute.String("game.id", req.ProductID),
	))
	defer span.End()

	if missing := missingFields(req); len(missing) > 0 {
		return nil, s.fail(span, domain.MissingFieldsError(missing...))
	}

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, s.fail(span, domain.NewAuthenticationError(err))
	}

	capture, err := s.processor.CaptureOrder(ctx, token, req.OrderID)
	if err != nil {
		return nil, s.fail(span, domain.NewUpstreamError("Failed to capture payment", err))
	}

	if capture.Status != domain.ProcessorStatusCompleted {
		s.logger.WarnContext(ctx, "capture not completed",
			"processor_order_id", req.OrderID,
			"status", capture.Status,
		)
		return nil, s.fail(span, domain.NewPaymentIncompleteError(capture.Status))
	}

	settled, settlement, err := settledAmount(capture)
	if err != nil {
		// Money has moved but the response is unusable; leave a trail for support.
		s.logger.ErrorContext(ctx, "completed capture without usable settlement",
			"processor_order_id", req.OrderID,
			"error", err,
		)
		return nil, s.fail(span, domain.NewUpstreamError("Payment processor returned an unexpected capture response", err))
	}

	if capture.ReferenceID != "" && capture.ReferenceID != req.ProductID {
		s.logger.ErrorContext(ctx, "captured order was created for another game",
			"processor_order_id", req.OrderID,
			"processor_capture_id", settlement.CaptureID,
			"captured_game_id", capture.ReferenceID,
			"requested_game_id", req.ProductID,
			"user_id", req.UserID,
			"amount", settled.Value(),
			"currency", settled.Currency,
		)
		return nil, s.fail(span, domain.NewOrderMismatchError(req.OrderID,
			fmt.Errorf("order was created for game %q, capture requested game %q", capture.ReferenceID, req.ProductID)))
	}

	entry := domain.LedgerEntry{
		ID:                 uuid.New(),
		UserID:             req.UserID,
		ProductID:          req.ProductID,
		Status:             domain.StatusCompleted,
		Amount:             settled.Amount,
		Currency:           settled.Currency,
		PaymentMethod:      req.PaymentMethod,
		ProcessorOrderID:   req.OrderID,
		ProcessorCaptureID: settlement.CaptureID,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	inserted, err := s.ledger.Record(writeCtx, entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "payment captured but ledger write failed",
			"processor_order_id", req.OrderID,
			"processor_capture_id", settlement.CaptureID,
			"user_id", req.UserID,
			"game_id", req.ProductID,
			"amount", settled.Value(),
			"currency", settled.Currency,
			"error", err,
		)
		return nil, s.fail(span, domain.NewLedgerWriteError(req.OrderID, err))
	}

	if inserted {
		s.logger.InfoContext(ctx, "order recorded",
			"order_id", entry.ID.String(),
			"processor_order_id", req.OrderID,
			"amount", settled.Value(),
			"currency", settled.Currency,
		)
		if err := s.broker.PublishOrderCompleted(writeCtx, entry); err != nil {
			s.logger.WarnContext(ctx, "failed to publish order.completed", "processor_order_id", req.OrderID, "error", err)
		}
	} else {
		if err := s.checkRecordedOwner(writeCtx, req); err != nil {
			return nil, s.fail(span, err)
		}
		s.logger.InfoContext(ctx, "order already recorded for processor order", "processor_order_id", req.OrderID)
	}

	return &domain.CaptureResult{
		Success:  true,
		Settled:  settled,
		Recorded: inserted,
		Raw:      capture.Raw,
	}, nil
}

// checkRecordedOwner confirms that the order already recorded for a replayed
// processor order id belongs to the same user and game as req.
func (s *service) checkRecordedOwner(ctx context.Context, req domain.CaptureRequest) *domain.Error {
	existing, err := s.ledger.FindByProcessorOrder(ctx, req.OrderID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load recorded order for replayed capture",
			"processor_order_id", req.OrderID,
			"error", err,
		)
		return domain.NewLedgerWriteError(req.OrderID, err)
	}
	if existing == nil {
		s.logger.ErrorContext(ctx, "replayed capture has no recorded order", "processor_order_id", req.OrderID)
		return domain.NewLedgerWriteError(req.OrderID, errors.New("conflicting order row not found"))
	}
	if existing.UserID != req.UserID || existing.ProductID != req.ProductID {
		s.logger.ErrorContext(ctx, "replayed capture names a different owner",
			"processor_order_id", req.OrderID,
			"recorded_user_id", existing.UserID,
			"recorded_game_id", existing.ProductID,
			"requested_user_id", req.UserID,
			"requested_game_id", req.ProductID,
		)
		return domain.NewOrderMismatchError(req.OrderID, errors.New("processor order is recorded for another user or game"))
	}
	return nil
}

func (s *service) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	var missing []string
	if blank(userID) {
		missing = append(missing, "userId")
	}
	if blank(productID) {
		missing = append(missing, "gameId")
	}
	if len(missing) > 0 {
		return false, domain.MissingFieldsError(missing...)
	}
	return s.ledger.HasPurchased(ctx, userID, productID)
}

func (s *service) fail(span trace.Span, err *domain.Error) error {
	span.SetStatus(codes.Error, domain.Code(err))
	if err.Cause != nil {
		span.RecordError(err.Cause)
	}
	return err
}

func missingFields(req domain.CaptureRequest) []string {
	var missing []string
	if blank(req.OrderID) {
		missing = append(missing, "orderId")
	}
	if blank(req.ProductID) {
		missing = append(missing, "gameId")
	}
	if blank(req.UserID) {
		missing = append(missing, "userId")
	}
	if blank(req.PaymentMethod) {
		missing = append(missing, "paymentMethod")
	}
	return missing
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// settledAmount extracts the first capture of the first purchase unit.
func settledAmount(capture *domain.ProcessorCapture) (domain.Money, domain.Settlement, error) {
	if len(capture.Settlements) == 0 {
		return domain.Money{}, domain.Settlement{}, errors.New("capture response has no capture records")
	}
	first := capture.Settlements[0]
	if first.Currency == "" {
		return domain.Money{}, first, errors.New("capture record has no currency")
	}
	amount, err := decimal.NewFromString(first.Value)
	if err != nil {
		return domain.Money{}, first, err
	}
	return domain.Money{Amount: amount, Currency: first.Currency}, first, nil
}

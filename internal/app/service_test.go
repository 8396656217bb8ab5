package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/go-faker/faker/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/core/domain"
)

// Mock - implementation of the catalog
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) PriceOf(ctx context.Context, productID string) (string, error) {
	args := m.Called(ctx, productID)
	return args.String(0), args.Error(1)
}

// Mock - implementation of the ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Record(ctx context.Context, entry domain.LedgerEntry) (bool, error) {
	args := m.Called(ctx, entry)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	args := m.Called(ctx, userID, productID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) ListByUser(ctx context.Context, userID string) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func (m *MockLedger) FindByProcessorOrder(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*domain.LedgerEntry), args.Error(1)
}

type MockTokens struct {
	mock.Mock
}

func (m *MockTokens) AccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) CreateOrder(ctx context.Context, token string, amount domain.Money, ref string) (*domain.ProcessorOrder, error) {
	args := m.Called(ctx, token, amount, ref)
	order, _ := args.Get(0).(*domain.ProcessorOrder)
	return order, args.Error(1)
}

func (m *MockProcessor) CaptureOrder(ctx context.Context, token, orderID string) (*domain.ProcessorCapture, error) {
	args := m.Called(ctx, token, orderID)
	capture, _ := args.Get(0).(*domain.ProcessorCapture)
	return capture, args.Error(1)
}

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) PublishOrderCompleted(ctx context.Context, entry domain.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type mocks struct {
	catalog   *MockCatalog
	ledger    *MockLedger
	tokens    *MockTokens
	processor *MockProcessor
	broker    *MockBroker
}

func (m mocks) assertExpectations(t *testing.T) {
	m.catalog.AssertExpectations(t)
	m.ledger.AssertExpectations(t)
	m.tokens.AssertExpectations(t)
	m.processor.AssertExpectations(t)
	m.broker.AssertExpectations(t)
}

func newTestService(t *testing.T) (*service, mocks) {
	t.Helper()
	m := mocks{
		catalog:   new(MockCatalog),
		ledger:    new(MockLedger),
		tokens:    new(MockTokens),
		processor: new(MockProcessor),
		broker:    new(MockBroker),
	}
	svc := NewCheckoutService(m.catalog, m.ledger, m.tokens, m.processor, m.broker,
		Pricing{Rate: decimal.RequireFromString("83.5"), SettlementCurrency: "USD"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return svc.(*service), m
}

func completedCapture(orderID, value, currency string) *domain.ProcessorCapture {
	return &domain.ProcessorCapture{
		OrderID:     orderID,
		Status:      domain.ProcessorStatusCompleted,
		ReferenceID: "game-1",
		Settlements: []domain.Settlement{
			{CaptureID: "CAP-1", Status: "COMPLETED", Value: value, Currency: currency},
		},
		Raw: json.RawMessage(`{"id":"` + orderID + `","status":"COMPLETED"}`),
	}
}

func captureRequest() domain.CaptureRequest {
	return domain.CaptureRequest{
		OrderID:       "ORDER123",
		ProductID:     "game-1",
		UserID:        faker.UUIDHyphenated(),
		PaymentMethod: "paypal",
	}
}

func TestCreateOrder_ConvertsCatalogPrice(t *testing.T) {
	tests := []struct {
		name  string
		price string
		want  string
	}{
		{"decimal cents with symbol", "₹1999.00", "23.94"},
		{"integer price", "835", "10.00"},
		{"thousands separator", "₹1,670.00", "20.00"},
		{"whitespace and code", " INR 499 ", "5.98"},
		{"rounds half up", "₹100", "1.20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newTestService(t)
			ctx := context.Background()

			m.catalog.On("PriceOf", mock.Anything, "game-1").Return(tt.price, nil)
			m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
			m.processor.On("CreateOrder", mock.Anything, "token", mock.MatchedBy(func(a domain.Money) bool {
				return a.Value() == tt.want && a.Currency == "USD"
			}), "game-1").Return(&domain.ProcessorOrder{ID: "ORDER123", Status: "CREATED"}, nil)

			order, err := svc.CreateOrder(ctx, "game-1")

			require.NoError(t, err)
			assert.Equal(t, "ORDER123", order.ID)
			m.assertExpectations(t)
		})
	}
}

func TestCreateOrder_MissingGameID(t *testing.T) {
	svc, m := newTestService(t)

	_, err := svc.CreateOrder(context.Background(), "  ")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Game ID is required", err.Error())
	m.catalog.AssertNotCalled(t, "PriceOf", mock.Anything, mock.Anything)
	m.tokens.AssertNotCalled(t, "AccessToken", mock.Anything)
	m.processor.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	for name, catalogErr := range map[string]error{
		"missing row": domain.ErrProductNotFound,
		"query error": errors.New("connection reset"),
	} {
		t.Run(name, func(t *testing.T) {
			svc, m := newTestService(t)
			m.catalog.On("PriceOf", mock.Anything, "ghost").Return("", catalogErr)

			_, err := svc.CreateOrder(context.Background(), "ghost")

			assert.ErrorIs(t, err, domain.ErrNotFound)
			assert.ErrorIs(t, err, catalogErr)
			m.tokens.AssertNotCalled(t, "AccessToken", mock.Anything)
		})
	}
}

func TestCreateOrder_UnparseablePriceIsNotFound(t *testing.T) {
	svc, m := newTestService(t)
	m.catalog.On("PriceOf", mock.Anything, "game-1").Return("Free to play", nil)

	_, err := svc.CreateOrder(context.Background(), "game-1")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	m.processor.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_TokenFailure(t *testing.T) {
	svc, m := newTestService(t)
	m.catalog.On("PriceOf", mock.Anything, "game-1").Return("₹1999.00", nil)
	m.tokens.On("AccessToken", mock.Anything).Return("", errors.New("401 invalid_client"))

	_, err := svc.CreateOrder(context.Background(), "game-1")

	assert.ErrorIs(t, err, domain.ErrAuthentication)
	m.processor.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_ProcessorFailureHidesBody(t *testing.T) {
	svc, m := newTestService(t)
	m.catalog.On("PriceOf", mock.Anything, "game-1").Return("₹1999.00", nil)
	m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
	m.processor.On("CreateOrder", mock.Anything, "token", mock.Anything, "game-1").
		Return(nil, errors.New(`status 400: {"name":"INVALID_REQUEST","debug_id":"abc"}`))

	_, err := svc.CreateOrder(context.Background(), "game-1")

	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.NotContains(t, err.Error(), "debug_id")
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Cause.Error(), "INVALID_REQUEST")
}

func TestCaptureOrder_Success(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()
	req := captureRequest()

	m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
	m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").
		Return(completedCapture("ORDER123", "23.94", "USD"), nil)
	m.ledger.On("Record", mock.Anything, mock.MatchedBy(func(e domain.LedgerEntry) bool {
		return e.UserID == req.UserID &&
			e.ProductID == "game-1" &&
			e.Status == domain.StatusCompleted &&
			e.Amount.Equal(decimal.RequireFromString("23.94")) &&
			e.Currency == "USD" &&
			e.PaymentMethod == "paypal" &&
			e.ProcessorOrderID == "ORDER123" &&
			e.ProcessorCaptureID == "CAP-1"
	})).Return(true, nil).Once()
	m.broker.On("PublishOrderCompleted", mock.Anything, mock.AnythingOfType("domain.LedgerEntry")).Return(nil).Once()

	result, err := svc.CaptureOrder(ctx, req)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Recorded)
	assert.Equal(t, "23.94", result.Settled.Value())
	assert.Equal(t, "USD", result.Settled.Currency)
	assert.JSONEq(t, `{"id":"ORDER123","status":"COMPLETED"}`, string(result.Raw))
	m.assertExpectations(t)
}

func TestCaptureOrder_LedgerUsesCapturedAmountNotRequested(t *testing.T) {
	svc, m := newTestService(t)
	req := captureRequest()

	// Partial capture: the processor settled less than initiation requested.
	m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
	m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").
		Return(completedCapture("ORDER123", "20.00", "USD"), nil)
	m.ledger.On("Record", mock.Anything, mock.MatchedBy(func(e domain.LedgerEntry) bool {
		return e.Amount.Equal(decimal.RequireFromString("20.00")) && e.Currency == "USD"
	})).Return(true, nil).Once()
	m.broker.On("PublishOrderCompleted", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.CaptureOrder(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "20.00", result.Settled.Value())
	m.ledger.AssertExpectations(t)
}

func TestCaptureOrder_MissingFields(t *testing.T) {
	svc, m := newTestService(t)

	_, err := svc.CaptureOrder(context.Background(), domain.CaptureRequest{OrderID: "ORDER123", ProductID: "game-1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Missing required fields: userId, paymentMethod", err.Error())
	m.tokens.AssertNotCalled(t, "AccessToken", mock.Anything)
	m.processor.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything, mock.Anything)
	m.ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestCaptureOrder_BlankFieldsAreMissing(t *testing.T) {
	svc, m := newTestService(t)

	_, err := svc.CaptureOrder(context.Background(), domain.CaptureRequest{
		OrderID:       "ORDER123",
		ProductID:     "game-1",
		UserID:        "   ",
		PaymentMethod: "\t",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Missing required fields: userId, paymentMethod", err.Error())
	m.processor.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything, mock.Anything)
	m.ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestCaptureOrder_ProductMismatchGrantsNothing(t *testing.T) {
	svc, m := newTestService(t)
	req := captureRequest()
	req.ProductID = "premium-game"
	capture := completedCapture("ORDER123", "0.12", "USD")
	capture.ReferenceID = "cheap-game"

	m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
	m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").Return(capture, nil)

	result, err := svc.CaptureOrder(context.Background(), req)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrOrderMismatch)
	assert.Equal(t, "order_mismatch", domain.Code(err))
	assert.Contains(t, err.Error(), "ORDER123")
	m.ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	m.broker.AssertNotCalled(t, "PublishOrderCompleted", mock.Anything, mock.Anything)
}

func TestCaptureOrder_MissingReferenceIDIsAccepted(t *testing.T) {
	svc, m := newTestService(t)
	capture := completedCapture("ORDER123", "23.94", "USD")
	capture.ReferenceID = ""

	m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
	m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").Return(capture, nil)
	m.ledger.On("Record", mock.Anything, mock.Anything).Return(true, nil).Once()
	m.broker.On("PublishOrderCompleted", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := svc.CaptureOrder(context.Background(), captureRequest())

	require.NoError(t, err)
	assert.True(t, result.Recorded)
	m.assertExpectations(t)
}

func TestCaptureOrder_RecordsAfterCallerGoesAway(t *testing.T) {
	svc, m := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	live := mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })

	m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
	m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").
		Run(func(mock.Arguments) { cancel() }).
		Return(completedCapture("ORDER123", "23.94", "USD"), nil)
	m.ledger.On("Record", live, mock.Anything).Return(true, nil).Once()
	m.broker.On("PublishOrderCompleted", live, mock.Anything).Return(nil).Once()

	result, err := svc.CaptureOrder(ctx, captureRequest())

	require.NoError(t, err)
	assert.True(t, result.Recorded)
	require.Error(t, ctx.Err())
	m.assertExpectations(t)
}

func TestCaptureOrder_NotCompletedWritesNothing(t *testing.T) {
	for _, status := range []string{"DECLINED", "PENDING", "VOIDED", "PAYER_ACTION_REQUIRED", ""} {
		t.Run("status "+status, func(t *testing.T) {
			svc, m := newTestService(t)
			capture := completedCapture("ORDER123", "23.94", "USD")
			capture.Status = status

			m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
			m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").Return(capture, nil)

			_, err := svc.CaptureOrder(context.Background(), captureRequest())

			assert.ErrorIs(t, err, domain.ErrPaymentIncomplete)
			var derr *domain.Error
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, status, derr.Status)
			m.ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
			m.broker.AssertNotCalled(t, "PublishOrderCompleted", mock.Anything, mock.Anything)
		})
	}
}

func TestCaptureOrder_ProcessorRejection(t *testing.T) {
	svc, m := newTestService(t)
	m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
	m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").
		Return(nil, errors.New("status 422: ORDER_ALREADY_CAPTURED"))

	_, err := svc.CaptureOrder(context.Background(), captureRequest())

	assert.ErrorIs(t, err, domain.ErrUpstream)
	m.ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestCaptureOrder_MalformedSettlementFailsClosed(t *testing.T) {
	cases := map[string]*domain.ProcessorCapture{
		"no captures":    {Status: domain.ProcessorStatusCompleted},
		"no currency":    {Status: domain.ProcessorStatusCompleted, Settlements: []domain.Settlement{{Value: "1.00"}}},
		"bad amount":     {Status: domain.ProcessorStatusCompleted, Settlements: []domain.Settlement{{Value: "abc", Currency: "USD"}}},
		"missing amount": {Status: domain.ProcessorStatusCompleted, Settlements: []domain.Settlement{{Currency: "USD"}}},
	}
	for name, capture := range cases {
		t.Run(name, func(t *testing.T) {
			svc, m := newTestService(t)
			m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
			m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").Return(capture, nil)

			_, err := svc.CaptureOrder(context.Background(), captureRequest())

			assert.ErrorIs(t, err, domain.ErrUpstream)
			m.ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
		})
	}
}

func TestCaptureOrder_LedgerFailureAfterCapture(t *testing.T) {
	svc, m := newTestService(t)
	m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
	m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").
		Return(completedCapture("ORDER123", "23.94", "USD"), nil)
	m.ledger.On("Record", mock.Anything, mock.Anything).Return(false, errors.New("insert failed")).Once()

	_, err := svc.CaptureOrder(context.Background(), captureRequest())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerWrite)
	assert.Contains(t, err.Error(), "Payment was successful")
	assert.Contains(t, err.Error(), "ORDER123")
	m.ledger.AssertNumberOfCalls(t, "Record", 1)
	m.broker.AssertNotCalled(t, "PublishOrderCompleted", mock.Anything, mock.Anything)
}

func TestCaptureOrder_ReplayedCaptureDoesNotDuplicate(t *testing.T) {
	svc, m := newTestService(t)
	m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
	m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").
		Return(completedCapture("ORDER123", "23.94", "USD"), nil)
	req := captureRequest()
	m.ledger.On("Record", mock.Anything, mock.Anything).Return(false, nil).Once()
	m.ledger.On("FindByProcessorOrder", mock.Anything, "ORDER123").Return(&domain.LedgerEntry{
		UserID:           req.UserID,
		ProductID:        req.ProductID,
		ProcessorOrderID: "ORDER123",
	}, nil).Once()

	result, err := svc.CaptureOrder(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Recorded)
	m.broker.AssertNotCalled(t, "PublishOrderCompleted", mock.Anything, mock.Anything)
}

func TestCaptureOrder_ReplayByAnotherUserIsRejected(t *testing.T) {
	tests := []struct {
		name     string
		recorded domain.LedgerEntry
	}{
		{name: "other user", recorded: domain.LedgerEntry{UserID: "someone-else", ProductID: "game-1"}},
		{name: "other game", recorded: domain.LedgerEntry{ProductID: "game-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newTestService(t)
			req := captureRequest()
			recorded := tt.recorded
			if recorded.UserID == "" {
				recorded.UserID = req.UserID
			}

			m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
			m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").
				Return(completedCapture("ORDER123", "23.94", "USD"), nil)
			m.ledger.On("Record", mock.Anything, mock.Anything).Return(false, nil).Once()
			m.ledger.On("FindByProcessorOrder", mock.Anything, "ORDER123").Return(&recorded, nil).Once()

			result, err := svc.CaptureOrder(context.Background(), req)

			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, domain.ErrOrderMismatch)
			m.broker.AssertNotCalled(t, "PublishOrderCompleted", mock.Anything, mock.Anything)
		})
	}
}

func TestCaptureOrder_ReplayLookupFailure(t *testing.T) {
	svc, m := newTestService(t)
	m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
	m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").
		Return(completedCapture("ORDER123", "23.94", "USD"), nil)
	m.ledger.On("Record", mock.Anything, mock.Anything).Return(false, nil).Once()
	m.ledger.On("FindByProcessorOrder", mock.Anything, "ORDER123").Return((*domain.LedgerEntry)(nil), errors.New("pool closed")).Once()

	_, err := svc.CaptureOrder(context.Background(), captureRequest())

	assert.ErrorIs(t, err, domain.ErrLedgerWrite)
}

func TestCaptureOrder_BrokerFailureIsNotFatal(t *testing.T) {
	svc, m := newTestService(t)
	m.tokens.On("AccessToken", mock.Anything).Return("token", nil)
	m.processor.On("CaptureOrder", mock.Anything, "token", "ORDER123").
		Return(completedCapture("ORDER123", "23.94", "USD"), nil)
	m.ledger.On("Record", mock.Anything, mock.Anything).Return(true, nil)
	m.broker.On("PublishOrderCompleted", mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	result, err := svc.CaptureOrder(context.Background(), captureRequest())

	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestHasPurchased(t *testing.T) {
	svc, m := newTestService(t)
	m.ledger.On("HasPurchased", mock.Anything, "user-1", "game-1").Return(true, nil)

	owned, err := svc.HasPurchased(context.Background(), "user-1", "game-1")
	require.NoError(t, err)
	assert.True(t, owned)

	_, err = svc.HasPurchased(context.Background(), "", "game-1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.HasPurchased(context.Background(), " ", "game-1")
	assert.ErrorIs(t, err, domain.ErrValidation)
	m.ledger.AssertNumberOfCalls(t, "HasPurchased", 1)
}

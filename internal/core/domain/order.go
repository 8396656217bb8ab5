package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the settlement status stored on a ledger entry. The service
// only ever writes StatusCompleted.
type OrderStatus string

const (
	StatusCompleted OrderStatus = "completed"
)

// ProcessorStatusCompleted is the processor's canonical capture status.
const ProcessorStatusCompleted = "COMPLETED"

// Money is an amount in a specific currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// Value renders the amount with two decimal places, the minor-unit precision
// the processor expects.
func (m Money) Value() string {
	return m.Amount.StringFixed(2)
}

// ProcessorOrder is the processor-side order created at initiation. It is
// never persisted by this service.
type ProcessorOrder struct {
	ID     string
	Status string
	Amount Money
}

// Settlement is a single capture record reported by the processor.
type Settlement struct {
	CaptureID string
	Status    string
	Value     string
	Currency  string
}

// ProcessorCapture is the typed subset of the processor's capture response.
type ProcessorCapture struct {
	OrderID string
	Status  string
	// ReferenceID is the product id stamped on the first purchase unit at
	// creation. Empty when the processor omits it.
	ReferenceID string
	// Settlements are the captures of the first purchase unit.
	Settlements []Settlement
	Raw         json.RawMessage
}

// CaptureRequest holds the inputs of a capture. All fields are required.
type CaptureRequest struct {
	OrderID       string
	ProductID     string
	UserID        string
	PaymentMethod string
}

// CaptureResult is returned to the client after a successful capture.
type CaptureResult struct {
	Success  bool
	Settled  Money
	Recorded bool
	Raw      json.RawMessage
}

// LedgerEntry is one immutable completed order.
type LedgerEntry struct {
	ID                 uuid.UUID
	UserID             string
	ProductID          string
	Status             OrderStatus
	Amount             decimal.Decimal
	Currency           string
	PaymentMethod      string
	ProcessorOrderID   string
	ProcessorCaptureID string
	CreatedAt          time.Time
}

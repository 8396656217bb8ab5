package paypal

import "fmt"

// Subset of the Orders v2 API consumed by the checkout.

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnitRequest struct {
	ReferenceID string `json:"reference_id,omitempty"`
	Amount      amount `json:"amount"`
}

type createOrderRequest struct {
	Intent        string                `json:"intent"`
	PurchaseUnits []purchaseUnitRequest `json:"purchase_units"`
}

type createOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type captureRecord struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Amount *amount `json:"amount"`
}

type capturePurchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	Payments    struct {
		Captures []captureRecord `json:"captures"`
	} `json:"payments"`
}

type captureOrderResponse struct {
	ID            string                `json:"id"`
	Status        string                `json:"status"`
	PurchaseUnits []capturePurchaseUnit `json:"purchase_units"`
}

// APIError is a non-success answer from the processor. Body is the raw
// response and must only be logged.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

package models

import "time"

// Payment records the fee captured for an approved pre-registration.
// Exactly one payment may exist per pre-registration, and the receipt
// number is unique across all payments.
type Payment struct {
	ID                string    `db:"id" json:"id"`
	PreRegistrationID string    `db:"pre_registration_id" json:"pre_registration_id"`
	Amount            float64   `db:"amount" json:"amount"`
	ReceiptNumber     string    `db:"receipt_number" json:"receipt_number"`
	PaidAt            time.Time `db:"paid_at" json:"paid_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentDiscrepancy reports a mismatch between the recorded amount and
// the scheduled price. It accompanies a successful write, it never blocks
// it.
type PaymentDiscrepancy struct {
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
	Delta    float64 `json:"delta"`
}

// PaymentResult is the outcome of recording or editing a payment.
type PaymentResult struct {
	Payment     *Payment            `json:"payment"`
	Discrepancy *PaymentDiscrepancy `json:"discrepancy,omitempty"`
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/money"
	"gorm.io/datatypes"
)

const (
	DirectionSale   = "SALE"
	DirectionRefund = "REFUND"
)

const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeAmbiguous = "ambiguous"
)

// ProcessorResponseRecord is one raw gateway exchange. Rows are append-only:
// a later resolution of an ambiguous attempt is a new row pointing at the
// original through ResolvesRecordID.
type ProcessorResponseRecord struct {
	ID                    snowflake.ID      `json:"id" gorm:"primaryKey"`
	AttemptID             string            `json:"attempt_id" gorm:"size:64;not null;index"`
	BasketReference       string            `json:"basket_reference" gorm:"size:191;not null;index"`
	OrderReference        *string           `json:"order_reference,omitempty" gorm:"type:text"`
	TransactionID         *string           `json:"transaction_id,omitempty" gorm:"size:191;index"`
	OriginalTransactionID *string           `json:"original_transaction_id,omitempty" gorm:"size:191;index"`
	ResolvesRecordID      *snowflake.ID     `json:"resolves_record_id,omitempty" gorm:"uniqueIndex"`
	Gateway               string            `json:"gateway" gorm:"type:text;not null"`
	Direction             string            `json:"direction" gorm:"type:text;not null"`
	Outcome               string            `json:"outcome" gorm:"type:text;not null"`
	AmountMinor           int64             `json:"amount_minor" gorm:"not null"`
	Currency              string            `json:"currency" gorm:"type:char(3);not null"`
	FailureMessage        *string           `json:"failure_message,omitempty" gorm:"type:text"`
	RawPayload            []byte            `json:"raw_payload,omitempty"`
	RequestSummary        datatypes.JSONMap `json:"request_summary,omitempty"`
	CreatedAt             time.Time         `json:"created_at" gorm:"not null"`
}

func (ProcessorResponseRecord) TableName() string { return "processor_response_records" }

// TokenClaim marks a payment token as presented to a gateway. Only a
// fingerprint of the token is stored.
type TokenClaim struct {
	Fingerprint string    `json:"fingerprint" gorm:"size:64;primaryKey"`
	Gateway     string    `json:"gateway" gorm:"type:text;not null"`
	ClaimedAt   time.Time `json:"claimed_at" gorm:"not null"`
}

func (TokenClaim) TableName() string { return "payment_token_claims" }

// ChargeRequest is the caller's input to a charge.
type ChargeRequest struct {
	BasketReference string
	Amount          money.Money
	PaymentToken    string
	GatewayName     string
}

// HandledProcessorResponse is the canonical result of a successful charge.
// It never carries raw gateway objects.
type HandledProcessorResponse struct {
	TransactionID string
	Total         money.Money
	Currency      string
	CardNumber    string
	CardType      string
	RecordID      snowflake.ID
}

type RefundRequest struct {
	OriginalTransactionID string
	Amount                money.Money
	OrderReference        string
}

type RefundResult struct {
	RefundTransactionID string
	Amount              money.Money
	RecordID            snowflake.ID
}

// BillingAddress is built once per resolution and handed back to the caller.
type BillingAddress struct {
	FirstName   string
	LastName    string
	Line1       string
	Line2       string
	City        string
	Postcode    string
	State       string
	CountryCode string
	CountryName string
}

// SettledSale is the subset of a successful SALE record a refund needs.
type SettledSale struct {
	RecordID        snowflake.ID
	TransactionID   string
	BasketReference string
	Gateway         string
	AmountMinor     int64
	Currency        string
}

package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/money"
)

var (
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidRequest        = errors.New("invalid_request")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrUnsupportedCurrency   = errors.New("unsupported_currency")
	ErrCurrencyMismatch      = errors.New("currency_mismatch")
	ErrGatewayRejected       = errors.New("gateway_rejected")
	ErrAmbiguousOutcome      = errors.New("ambiguous_outcome")
	ErrDuplicateSubmission   = errors.New("duplicate_submission")
	ErrUnknownTransaction    = errors.New("unknown_transaction")
	ErrRefundExceedsOriginal = errors.New("refund_exceeds_original")
	ErrRefundInProgress      = errors.New("refund_in_progress")
	ErrAddressNotFound       = errors.New("address_not_found")
	ErrCapabilityUnsupported = errors.New("capability_unsupported")

	// ErrGatewayUnavailable marks a call whose outcome is unknown: a transport
	// failure, a timeout or a 5xx after the request may have been processed.
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	// ErrRequestNotSent marks a failure before any byte reached the gateway.
	ErrRequestNotSent = errors.New("request_not_sent")
)

// GatewayError is a definitive rejection. Error returns the gateway's
// message verbatim.
type GatewayError struct {
	Gateway  string
	Message  string
	RecordID snowflake.ID
}

func (e *GatewayError) Error() string { return e.Message }

func (e *GatewayError) Is(target error) bool { return target == ErrGatewayRejected }

// AmbiguousOutcomeError means the gateway may or may not have processed the
// request. The attempt is recorded and must not be retried automatically.
type AmbiguousOutcomeError struct {
	Gateway   string
	AttemptID string
	RecordID  snowflake.ID
	Cause     error
}

func (e *AmbiguousOutcomeError) Error() string {
	return "ambiguous outcome, reconciliation required"
}

func (e *AmbiguousOutcomeError) Unwrap() error { return e.Cause }

func (e *AmbiguousOutcomeError) Is(target error) bool { return target == ErrAmbiguousOutcome }

type UnsupportedCurrencyError struct {
	Gateway  string
	Currency string
}

func (e *UnsupportedCurrencyError) Error() string {
	return fmt.Sprintf("currency %s is not supported by %s", e.Currency, e.Gateway)
}

func (e *UnsupportedCurrencyError) Is(target error) bool { return target == ErrUnsupportedCurrency }

type DuplicateSubmissionError struct {
	Gateway string
}

func (e *DuplicateSubmissionError) Error() string {
	return "payment token has already been submitted"
}

func (e *DuplicateSubmissionError) Is(target error) bool { return target == ErrDuplicateSubmission }

type UnknownTransactionError struct {
	TransactionID string
}

func (e *UnknownTransactionError) Error() string {
	return fmt.Sprintf("no settled sale for transaction %s", e.TransactionID)
}

func (e *UnknownTransactionError) Is(target error) bool { return target == ErrUnknownTransaction }

type RefundExceedsOriginalError struct {
	TransactionID string
	Requested     money.Money
	Refundable    money.Money
}

func (e *RefundExceedsOriginalError) Error() string {
	return fmt.Sprintf("refund of %s exceeds refundable %s for transaction %s", e.Requested, e.Refundable, e.TransactionID)
}

func (e *RefundExceedsOriginalError) Is(target error) bool { return target == ErrRefundExceedsOriginal }

type AddressNotFoundError struct {
	Gateway string
	Reason  string
}

func (e *AddressNotFoundError) Error() string {
	if e.Reason == "" {
		return "billing address not found"
	}
	return "billing address not found: " + e.Reason
}

func (e *AddressNotFoundError) Is(target error) bool { return target == ErrAddressNotFound }

// ConfigurationError is raised at startup for a missing or invalid credential.
type ConfigurationError struct {
	Gateway string
	Field   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("gateway %s: missing or invalid %s", e.Gateway, e.Field)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrInvalidConfig }

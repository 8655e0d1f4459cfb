package payment

import (
	"context"
	"errors"
	"fmt"
)

// ErrOutcomeUnknown means the call may or may not have taken effect on the processor
// (timeout, dropped connection). The operation must be looked up before it is retried.
var ErrOutcomeUnknown = errors.New("payment: processor outcome unknown")

// ProcessorError is a definitive rejection returned by the processor
type ProcessorError struct {
	Op      string
	Code    string
	Message string
}

func (e *ProcessorError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("payment: %s rejected: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("payment: %s rejected (%s): %s", e.Op, e.Code, e.Message)
}

type TransferRequest struct {
	Destination    string
	Amount         int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]interface{}
}

type Transfer struct {
	ID     string
	Amount int64
}

type RefundRequest struct {
	PaymentReference string
	Amount           int64
	Currency         string
	Reason           string
	IdempotencyKey   string
	Metadata         map[string]interface{}
}

type Refund struct {
	ID     string
	Amount int64
}

// CheckoutSession is the client payment a booking was paid with
type CheckoutSession struct {
	ID               string
	PaymentReference string
	Paid             bool
	Amount           int64
	Currency         string
	BookingID        string
}

// Event is a processor webhook event whose authenticity has been confirmed with the processor
type Event struct {
	ID      string
	Key     string
	Session *CheckoutSession
}

// Processor is the external payment processor. Its own ledger is a black box.
type Processor interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// FindTransfer looks up a transfer by the idempotency key it was created with. Returns nil when none exists.
	FindTransfer(ctx context.Context, idempotencyKey string) (*Transfer, error)
	// FindRefund looks up a refund of a payment by idempotency key. Returns nil when none exists.
	FindRefund(ctx context.Context, paymentReference, idempotencyKey string) (*Refund, error)

	// RetrieveEvent fetches a webhook event from the processor by ID
	RetrieveEvent(ctx context.Context, eventID string) (*Event, error)
}

// IsOutcomeUnknown reports whether err leaves the processor side effect undetermined
func IsOutcomeUnknown(err error) bool {
	return errors.Is(err, ErrOutcomeUnknown)
}

// Message returns the processor's own message for err, for surfacing to operators
func Message(err error) string {
	var processorErr *ProcessorError
	if errors.As(err, &processorErr) {
		return processorErr.Message
	}
	return err.Error()
}

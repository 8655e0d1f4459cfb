package omise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"djhub-api/res/payment"

	omisego "github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

const (
	metadataIdempotencyKey = "idempotency_key"
	metadataBookingID      = "booking_id"

	lookupPageSize = 100
)

// processor adapts an Omise account to payment.Processor.
// Checkout sessions are Omise charges: the session ID and the payment reference are both the charge ID.
type processor struct {
	client  *omisego.Client
	timeout time.Duration
	logger  *log.Logger
}

func New(publicKey, secretKey string, timeout time.Duration, logger *log.Logger) (payment.Processor, error) {
	client, err := omisego.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create omise client: %w", err)
	}

	return &processor{client: client, timeout: timeout, logger: logger}, nil
}

// MUTATIONS

func (p *processor) CreateTransfer(ctx context.Context, req payment.TransferRequest) (*payment.Transfer, error) {
	transfer := &omisego.Transfer{}
	err := p.call(ctx, "create transfer", func(client *omisego.Client) error {
		return client.Do(transfer, &operations.CreateTransfer{
			Amount:    req.Amount,
			Recipient: req.Destination,
			Metadata:  withIdempotencyKey(req.Metadata, req.IdempotencyKey),
		})
	})
	if err != nil {
		return nil, err
	}

	p.logger.Printf("[OMISE_TRANSFER] id=%s amount=%d key=%s", transfer.ID, transfer.Amount, req.IdempotencyKey)
	return &payment.Transfer{ID: transfer.ID, Amount: transfer.Amount}, nil
}

func (p *processor) CreateRefund(ctx context.Context, req payment.RefundRequest) (*payment.Refund, error) {
	metadata := withIdempotencyKey(req.Metadata, req.IdempotencyKey)
	if req.Reason != "" {
		metadata["reason"] = req.Reason
	}

	refund := &omisego.Refund{}
	err := p.call(ctx, "create refund", func(client *omisego.Client) error {
		return client.Do(refund, &operations.CreateRefund{
			ChargeID: req.PaymentReference,
			Amount:   req.Amount,
			Metadata: metadata,
		})
	})
	if err != nil {
		return nil, err
	}

	p.logger.Printf("[OMISE_REFUND] id=%s charge=%s amount=%d key=%s", refund.ID, req.PaymentReference, refund.Amount, req.IdempotencyKey)
	return &payment.Refund{ID: refund.ID, Amount: refund.Amount}, nil
}

// QUERIES

func (p *processor) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*payment.CheckoutSession, error) {
	charge := &omisego.Charge{}
	err := p.call(ctx, "retrieve charge", func(client *omisego.Client) error {
		return client.Do(charge, &operations.RetrieveCharge{ChargeID: sessionID})
	})
	if err != nil {
		return nil, err
	}
	return sessionFromCharge(charge), nil
}

// FindTransfer pages through transfers newest first until the key is found or the list is exhausted.
func (p *processor) FindTransfer(ctx context.Context, idempotencyKey string) (*payment.Transfer, error) {
	for offset := 0; ; offset += lookupPageSize {
		transfers := &omisego.TransferList{}
		err := p.call(ctx, "list transfers", func(client *omisego.Client) error {
			return client.Do(transfers, &operations.ListTransfers{
				List: recentFirst(offset),
			})
		})
		if err != nil {
			return nil, err
		}

		for _, transfer := range transfers.Data {
			if key, _ := transfer.Metadata[metadataIdempotencyKey].(string); key == idempotencyKey {
				return &payment.Transfer{ID: transfer.ID, Amount: transfer.Amount}, nil
			}
		}
		if lastPage(transfers.List, len(transfers.Data), offset) {
			return nil, nil
		}
	}
}

func (p *processor) FindRefund(ctx context.Context, paymentReference, idempotencyKey string) (*payment.Refund, error) {
	for offset := 0; ; offset += lookupPageSize {
		refunds := &omisego.RefundList{}
		err := p.call(ctx, "list refunds", func(client *omisego.Client) error {
			return client.Do(refunds, &operations.ListRefunds{
				ChargeID: paymentReference,
				List:     recentFirst(offset),
			})
		})
		if err != nil {
			return nil, err
		}

		for _, refund := range refunds.Data {
			if key, _ := refund.Metadata[metadataIdempotencyKey].(string); key == idempotencyKey {
				return &payment.Refund{ID: refund.ID, Amount: refund.Amount}, nil
			}
		}
		if lastPage(refunds.List, len(refunds.Data), offset) {
			return nil, nil
		}
	}
}

func (p *processor) RetrieveEvent(ctx context.Context, eventID string) (*payment.Event, error) {
	event := &omisego.Event{}
	err := p.call(ctx, "retrieve event", func(client *omisego.Client) error {
		return client.Do(event, &operations.RetrieveEvent{EventID: eventID})
	})
	if err != nil {
		return nil, err
	}

	result := &payment.Event{ID: event.ID, Key: event.Key}
	if event.Key != "charge.complete" {
		return result, nil
	}

	// event.Data is a generic map, re-decode it as a charge
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	var charge omisego.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return nil, fmt.Errorf("failed to decode charge from event %s: %w", eventID, err)
	}
	result.Session = sessionFromCharge(&charge)
	return result, nil
}

// COMMON UTILITIES

// call runs fn with a copy of the client bound to the processor timeout, so an expired
// deadline cancels the in-flight request. A deadline or transport failure is reported as
// payment.ErrOutcomeUnknown; an API error as *payment.ProcessorError.
func (p *processor) call(ctx context.Context, op string, fn func(client *omisego.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client := *p.client
	client.WithContext(ctx)

	err := fn(&client)
	if err == nil {
		return nil
	}
	var apiErr *omisego.Error
	if errors.As(err, &apiErr) {
		return &payment.ProcessorError{Op: op, Code: apiErr.Code, Message: apiErr.Message}
	}
	return fmt.Errorf("%w: %s: %v", payment.ErrOutcomeUnknown, op, err)
}

func recentFirst(offset int) operations.List {
	return operations.List{Offset: offset, Limit: lookupPageSize, Order: omisego.ReverseChronological}
}

func lastPage(list omisego.List, fetched, offset int) bool {
	return fetched == 0 || fetched < lookupPageSize || offset+fetched >= list.Total
}

func sessionFromCharge(charge *omisego.Charge) *payment.CheckoutSession {
	bookingID, _ := charge.Metadata[metadataBookingID].(string)
	return &payment.CheckoutSession{
		ID:               charge.ID,
		PaymentReference: charge.ID,
		Paid:             charge.Paid && string(charge.Status) == "successful",
		Amount:           charge.Amount,
		Currency:         charge.Currency,
		BookingID:        bookingID,
	}
}

func withIdempotencyKey(metadata map[string]interface{}, key string) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[metadataIdempotencyKey] = key
	return out
}

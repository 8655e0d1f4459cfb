package handler

import (
	"errors"
	"net/http"

	"djhub-api/sys/http/middleware"
	"djhub-api/sys/settlement"

	"github.com/gin-gonic/gin"
)

// WEBHOOK HANDLERS

// POST /webhooks/omise
//
// Only the event ID of the body is trusted. The event itself is fetched back from Omise,
// so a forged body cannot mark a booking paid.
func (h *Handler) OmiseWebhook(c *gin.Context) {
	var in struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	event, err := h.processor.RetrieveEvent(c.Request.Context(), in.ID)
	if err != nil {
		// a non-2xx makes Omise retry the delivery
		h.logger.Printf("Error verifying Omise event %s: %s", in.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not verify event", "code": settlement.KindExternalProcessor})
		return
	}
	if event.Key != "charge.complete" || event.Session == nil || !event.Session.Paid {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if event.Session.BookingID == "" {
		h.logger.Printf("Omise event %s has a paid charge %s without a booking", event.ID, event.Session.ID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ctx := middleware.WithSystemActor(c.Request.Context(), WebhookActorID)
	_, err = h.engine.ConfirmPayment(ctx, event.Session.BookingID, event.Session.ID)
	if errors.Is(err, settlement.ErrStateConflict) {
		// already confirmed, typically by a redelivery
		h.logger.Printf("Omise event %s not applied to booking %s: %s", event.ID, event.Session.BookingID, settlement.ReasonOf(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}

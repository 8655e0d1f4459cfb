package handler

import (
	"net/http"

	"djhub-api/sys/settlement"

	"github.com/gin-gonic/gin"
)

// QUERY HANDLERS

// GET /api/admin/bookings/:id/ledger
func (h *Handler) Ledger(c *gin.Context) {
	view, err := h.engine.Ledger(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLedgerJSON(view))
}

// MUTATION HANDLERS

// POST /api/admin/bookings/:id/payout
func (h *Handler) ProcessPayout(c *gin.Context) {
	var in settlement.PayoutOverride
	if err := bindOptionalJSON(c, &in); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.engine.ProcessPayout(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingJSON(booking))
}

// POST /api/admin/bookings/:id/refund
func (h *Handler) ProcessRefund(c *gin.Context) {
	var in struct {
		Amount *int64 `json:"amount"` // defaults to everything still held
		Reason string `json:"reason"`
	}
	if err := bindOptionalJSON(c, &in); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.engine.ProcessRefund(c.Request.Context(), c.Param("id"), in.Amount, in.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingJSON(booking))
}

// POST /api/admin/bookings/:id/dispute
func (h *Handler) OpenDispute(c *gin.Context) {
	var in struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.engine.OpenDispute(c.Request.Context(), c.Param("id"), in.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingJSON(booking))
}

// POST /api/admin/bookings/:id/dispute/resolve
func (h *Handler) ResolveDispute(c *gin.Context) {
	var in settlement.DisputeResolution
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.engine.ResolveDispute(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingJSON(booking))
}

// POST /api/admin/bookings/:id/reconcile
func (h *Handler) ReconcileBooking(c *gin.Context) {
	result, err := h.engine.ReconcileBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": toBookingJSON(result.Booking), "legs": result.Legs})
}

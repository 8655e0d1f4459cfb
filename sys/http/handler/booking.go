package handler

import (
	"net/http"
	"strconv"

	"djhub-api/res/store"
	"djhub-api/sys/settlement"

	"github.com/gin-gonic/gin"
)

// QUERY HANDLERS

// GET /api/admin/bookings?status=&providerId=&clientId=&disputeStatus=&from=&to=&limit=&offset=
func (h *Handler) ListBookings(c *gin.Context) {
	var filters store.BookingFilters
	if status := c.Query("status"); status != "" {
		s := store.BookingStatus(status)
		filters.Status = &s
	}
	if providerID := c.Query("providerId"); providerID != "" {
		filters.ProviderID = &providerID
	}
	if clientID := c.Query("clientId"); clientID != "" {
		filters.ClientID = &clientID
	}
	if disputeStatus := c.Query("disputeStatus"); disputeStatus != "" {
		s := store.DisputeStatus(disputeStatus)
		filters.DisputeStatus = &s
	}
	from, err := parseDate("from", c.Query("from"))
	if err != nil {
		badRequest(c, err)
		return
	}
	if !from.IsZero() {
		filters.StartDate = &from
	}
	to, err := parseDate("to", c.Query("to"))
	if err != nil {
		badRequest(c, err)
		return
	}
	if !to.IsZero() {
		filters.EndDate = &to
	}
	filters.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "0"))
	filters.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.engine.ListBookings(c.Request.Context(), filters)
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]*bookingJSON, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingJSON(b))
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out})
}

// GET /api/admin/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	booking, err := h.engine.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingJSON(booking))
}

// MUTATION HANDLERS

// POST /api/bookings
func (h *Handler) RequestBooking(c *gin.Context) {
	var in struct {
		EventType           string  `json:"eventType"`
		EventDate           string  `json:"eventDate"` // YYYY-MM-DD
		StartTime           string  `json:"startTime"`
		EndTime             string  `json:"endTime"`
		QuotedPrice         int64   `json:"quotedPrice"`
		RequestedProviderID *string `json:"requestedProviderId"`
		Notes               string  `json:"notes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	eventDate, err := parseDate("eventDate", in.EventDate)
	if err != nil {
		badRequest(c, err)
		return
	}

	booking, err := h.engine.RequestBooking(c.Request.Context(), settlement.BookingRequest{
		EventType:           in.EventType,
		EventDate:           eventDate,
		StartTime:           in.StartTime,
		EndTime:             in.EndTime,
		QuotedPrice:         in.QuotedPrice,
		RequestedProviderID: in.RequestedProviderID,
		Notes:               in.Notes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingJSON(booking))
}

// POST /api/admin/bookings/:id/review
func (h *Handler) BeginReview(c *gin.Context) {
	booking, err := h.engine.BeginReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingJSON(booking))
}

// POST /api/admin/bookings/:id/assign
func (h *Handler) AssignStaff(c *gin.Context) {
	var in settlement.StaffAssignment
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.engine.AssignStaff(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingJSON(booking))
}

// POST /api/admin/bookings/:id/confirm-payment
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var in struct {
		SessionID string `json:"sessionId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.engine.ConfirmPayment(c.Request.Context(), c.Param("id"), in.SessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingJSON(booking))
}

// POST /api/admin/bookings/:id/complete
func (h *Handler) CompleteEvent(c *gin.Context) {
	booking, err := h.engine.CompleteEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingJSON(booking))
}

// POST /api/admin/bookings/:id/cancel
func (h *Handler) CancelBooking(c *gin.Context) {
	var in struct {
		Reason string `json:"reason"`
	}
	if err := bindOptionalJSON(c, &in); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.engine.CancelBooking(c.Request.Context(), c.Param("id"), in.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingJSON(booking))
}

package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"djhub-api/res/payment"
	"djhub-api/sys/settlement"

	"github.com/gin-gonic/gin"
)

// WebhookActorID is recorded as the actor of changes made by processor webhooks
const WebhookActorID = "system:omise-webhook"

type Config struct {
	Logger    *log.Logger
	Engine    *settlement.Engine
	Processor payment.Processor // verifies webhook events
}

type Handler struct {
	logger    *log.Logger
	engine    *settlement.Engine
	processor payment.Processor
}

func New(config *Config) *Handler {
	return &Handler{
		logger:    config.Logger,
		engine:    config.Engine,
		processor: config.Processor,
	}
}

// Register mounts the API and webhook routes on r
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.POST("/bookings", h.RequestBooking)

	api.PUT("/staff/me/availability", h.ReplaceOwnAvailability)

	admin := api.Group("/admin")
	admin.GET("/bookings", h.ListBookings)
	bookings := admin.Group("/bookings/:id")
	bookings.GET("", h.GetBooking)
	bookings.POST("/review", h.BeginReview)
	bookings.POST("/assign", h.AssignStaff)
	bookings.POST("/confirm-payment", h.ConfirmPayment)
	bookings.POST("/complete", h.CompleteEvent)
	bookings.POST("/cancel", h.CancelBooking)
	bookings.POST("/payout", h.ProcessPayout)
	bookings.POST("/refund", h.ProcessRefund)
	bookings.POST("/dispute", h.OpenDispute)
	bookings.POST("/dispute/resolve", h.ResolveDispute)
	bookings.POST("/reconcile", h.ReconcileBooking)
	bookings.GET("/ledger", h.Ledger)
	bookings.GET("/replacements", h.SuggestReplacements)

	admin.POST("/availability/search", h.SearchAvailability)
	admin.PUT("/staff/:id/availability", h.ReplaceAvailability)
	admin.GET("/staff/:id/payroll", h.PayrollHistory)

	admin.POST("/payroll", h.RunPayroll)
	admin.POST("/payroll/:id/paid", h.MarkPayrollPaid)
	admin.GET("/payroll/:id/statement", h.PayrollStatement)

	r.POST("/webhooks/omise", h.OmiseWebhook)
}

// COMMON UTILITIES

var statusByKind = map[settlement.Kind]int{
	settlement.KindValidation:        http.StatusBadRequest,
	settlement.KindStateConflict:     http.StatusConflict,
	settlement.KindExternalProcessor: http.StatusBadGateway,
	settlement.KindNotFound:          http.StatusNotFound,
	settlement.KindPermission:        http.StatusForbidden,
}

// writeError renders an engine error. Anything outside the settlement taxonomy is logged
// and reported as an internal error without its details.
func (h *Handler) writeError(c *gin.Context, err error) {
	var settlementErr *settlement.Error
	if errors.As(err, &settlementErr) {
		status, ok := statusByKind[settlementErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": settlementErr.Reason, "code": settlementErr.Kind})
		return
	}

	h.logger.Printf("Error handling %s %s: %s", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "INTERNAL"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": settlement.KindValidation})
}

// bindOptionalJSON binds the body when there is one; an empty body leaves dst untouched
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(dst)
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, errors.New(field + " must be a YYYY-MM-DD date")
	}
	return day, nil
}

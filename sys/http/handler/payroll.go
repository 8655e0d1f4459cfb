package handler

import (
	"net/http"

	"djhub-api/sys/settlement"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// QUERY HANDLERS

// GET /api/admin/staff/:id/payroll
func (h *Handler) PayrollHistory(c *gin.Context) {
	records, err := h.engine.PayrollHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]*payrollJSON, 0, len(records))
	for _, r := range records {
		out = append(out, toPayrollJSON(r))
	}
	c.JSON(http.StatusOK, gin.H{"payroll": out})
}

// GET /api/admin/payroll/:id/statement redirects to a short-lived download link
func (h *Handler) PayrollStatement(c *gin.Context) {
	link, err := h.engine.PayrollStatementLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, link)
}

// MUTATION HANDLERS

// POST /api/admin/payroll
func (h *Handler) RunPayroll(c *gin.Context) {
	var in struct {
		StaffID         string           `json:"staffId"`
		PeriodStart     string           `json:"periodStart"` // YYYY-MM-DD
		PeriodEnd       string           `json:"periodEnd"`
		HoursWorked     *decimal.Decimal `json:"hoursWorked"`
		EventsCompleted *int             `json:"eventsCompleted"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	start, err := parseDate("periodStart", in.PeriodStart)
	if err != nil {
		badRequest(c, err)
		return
	}
	end, err := parseDate("periodEnd", in.PeriodEnd)
	if err != nil {
		badRequest(c, err)
		return
	}

	record, err := h.engine.RunPayroll(c.Request.Context(), settlement.PayrollRun{
		StaffID:         in.StaffID,
		PeriodStart:     start,
		PeriodEnd:       end,
		HoursWorked:     in.HoursWorked,
		EventsCompleted: in.EventsCompleted,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPayrollJSON(record))
}

// POST /api/admin/payroll/:id/paid
func (h *Handler) MarkPayrollPaid(c *gin.Context) {
	record, err := h.engine.MarkPayrollPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPayrollJSON(record))
}

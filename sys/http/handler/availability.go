package handler

import (
	"net/http"

	"djhub-api/sys/settlement"

	"github.com/gin-gonic/gin"
)

// QUERY HANDLERS

// GET /api/admin/bookings/:id/replacements
func (h *Handler) SuggestReplacements(c *gin.Context) {
	result, err := h.engine.SuggestReplacements(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAvailabilityJSON(result))
}

// POST /api/admin/availability/search
func (h *Handler) SearchAvailability(c *gin.Context) {
	var in struct {
		Date            string   `json:"date"` // YYYY-MM-DD
		StartTime       string   `json:"startTime"`
		EndTime         string   `json:"endTime"`
		EventType       string   `json:"eventType"`
		ExcludeStaffIDs []string `json:"excludeStaffIds"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	date, err := parseDate("date", in.Date)
	if err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.engine.SearchAvailability(c.Request.Context(), settlement.AvailabilityQuery{
		Date:            date,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		EventType:       in.EventType,
		ExcludeStaffIDs: in.ExcludeStaffIDs,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAvailabilityJSON(result))
}

// MUTATION HANDLERS

// PUT /api/admin/staff/:id/availability
func (h *Handler) ReplaceAvailability(c *gin.Context) {
	h.replaceAvailability(c, c.Param("id"))
}

// PUT /api/staff/me/availability
func (h *Handler) ReplaceOwnAvailability(c *gin.Context) {
	h.replaceAvailability(c, "")
}

func (h *Handler) replaceAvailability(c *gin.Context, staffID string) {
	var in struct {
		Windows []settlement.WeeklyWindow `json:"windows"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	windows, err := h.engine.ReplaceAvailability(c.Request.Context(), staffID, in.Windows)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": toWindowsJSON(windows)})
}

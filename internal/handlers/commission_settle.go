package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"syntarex/internal/commission"
	"syntarex/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

var settlementEngine *commission.Engine

// SetSettlementEngine wires the engine used by the settlement handlers.
func SetSettlementEngine(e *commission.Engine) {
	settlementEngine = e
}

// RegisterValidators adds the custom binding tags used by the request bodies.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("weekstart", func(fl validator.FieldLevel) bool {
			_, err := commission.ParseWeek(fl.Field().String())
			return err == nil
		})
	}
}

// CalculateRequest triggers a settlement run for one week.
type CalculateRequest struct {
	WeekStart string `json:"weekStart" binding:"required,weekstart"`
	Persist   bool   `json:"persist"`
}

// FinalizeRequest finalizes one week.
type FinalizeRequest struct {
	WeekStart string `json:"weekStart" binding:"required,weekstart"`
}

// CalculateCommissionSettlement runs the engine for a week, optionally
// persisting the pending result.
func CalculateCommissionSettlement(c *gin.Context) {
	if !engineReady(c) {
		return
	}
	var req CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": bindError(err, req.WeekStart).Error()})
		return
	}

	calc, err := settlementEngine.Calculate(c.Request.Context(), req.WeekStart, req.Persist)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": calc.View()})
}

// FinalizeCommissionSettlement finalizes a week. Repeating the call returns
// the stored commitment and totals.
func FinalizeCommissionSettlement(c *gin.Context) {
	if !engineReady(c) {
		return
	}
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": bindError(err, req.WeekStart).Error()})
		return
	}

	calc, err := settlementEngine.Finalize(c.Request.Context(), req.WeekStart)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": calc.FinalizeView()})
}

// GetCommissionSettlement returns the stored run of a week.
func GetCommissionSettlement(c *gin.Context) {
	if !engineReady(c) {
		return
	}
	calc, err := settlementEngine.Stored(c.Request.Context(), c.Param("week"))
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": calc.View()})
}

// ListCommissionEntries pages through the stored entries of a week.
// Query parameters: page (default: 1), page_size (default: 50, max: 500), user_id, type
func ListCommissionEntries(c *gin.Context) {
	if !engineReady(c) {
		return
	}
	week, err := commission.ParseWeek(c.Param("week"))
	if err != nil {
		respondSettlementError(c, err)
		return
	}

	page := 1
	if p := c.Query("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	pageSize := 50
	if ps := c.Query("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 && parsed <= 500 {
			pageSize = parsed
		}
	}
	entryType := models.CommissionType(c.Query("type"))
	if entryType != "" && !validCommissionType(entryType) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid type, expected direct, binary or override"})
		return
	}

	entries, total, err := settlementEngine.Entries(c.Request.Context(), commission.EntryQuery{
		Week:   week,
		UserID: c.Query("user_id"),
		Type:   entryType,
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	})
	if err != nil {
		respondSettlementError(c, err)
		return
	}

	data := make([]commission.EntryView, 0, len(entries))
	for _, e := range entries {
		data = append(data, commission.NewEntryView(e))
	}
	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"pagination": gin.H{
			"current_page": page,
			"page_size":    pageSize,
			"total_pages":  totalPages,
			"total_count":  total,
			"has_next":     page < int(totalPages),
			"has_prev":     page > 1,
		},
	})
}

// GetWeeklySales returns the aggregated eligible sales of a week.
func GetWeeklySales(c *gin.Context) {
	if !engineReady(c) {
		return
	}
	sales, err := settlementEngine.Sales(c.Request.Context(), c.Param("week"))
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": sales.View()})
}

// GetSettlementProof returns the inclusion proof of a user's settlement in a
// finalized week.
func GetSettlementProof(c *gin.Context) {
	if !engineReady(c) {
		return
	}
	proof, err := settlementEngine.Proof(c.Request.Context(), c.Param("week"), c.Param("user_id"))
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": proof})
}

func engineReady(c *gin.Context) bool {
	if settlementEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Settlement engine not configured"})
		return false
	}
	return true
}

func validCommissionType(t models.CommissionType) bool {
	for _, known := range models.CommissionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// bindError prefers the week parser's message over the validator's.
func bindError(err error, weekStart string) error {
	if _, weekErr := commission.ParseWeek(weekStart); weekErr != nil {
		return weekErr
	}
	return err
}

func settlementStatus(err error) int {
	switch {
	case errors.Is(err, commission.ErrInvalidWeek):
		return http.StatusBadRequest
	case errors.Is(err, commission.ErrWeekAlreadyProcessing), errors.Is(err, commission.ErrWeekNotFinalized),
		errors.Is(err, commission.ErrPreviousWeekPending), errors.Is(err, commission.ErrLaterWeekFinalized):
		return http.StatusConflict
	case errors.Is(err, commission.ErrWeekNotFound), errors.Is(err, commission.ErrUserNotSettled):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondSettlementError(c *gin.Context, err error) {
	status := settlementStatus(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("Commission settlement request failed")
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"syntarex/internal/commission"
	"syntarex/internal/models"
	dbconfig "syntarex/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GetCommissionSettings returns the active settings row
func GetCommissionSettings(c *gin.Context) {
	var settings models.CommissionSettings
	err := dbconfig.DB.Where("is_active = ?", true).Order("id desc").First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active commission settings"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateCommissionSettings replaces the active settings. The new values are
// validated together with the current rank table before they are saved; runs
// already in flight keep the snapshot they started with.
func UpdateCommissionSettings(c *gin.Context) {
	var request models.CommissionSettings
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var ranks []models.RankDefinition
	if err := dbconfig.DB.Find(&ranks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if _, err := commission.NewSnapshot(&request, ranks); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var current models.CommissionSettings
	err := dbconfig.DB.Where("is_active = ?", true).Order("id desc").First(&current).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	request.ID = current.ID
	request.CreatedAt = current.CreatedAt
	request.IsActive = true
	if err := dbconfig.DB.Save(&request).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, request)
}

// RankDefinitionRequest represents the request body for creating/updating a rank
type RankDefinitionRequest struct {
	Level              int             `json:"level" binding:"required,min=1"`
	Name               string          `json:"name" binding:"required"`
	MinPersonalSales   decimal.Decimal `json:"min_personal_sales"`
	MinTeamSales       decimal.Decimal `json:"min_team_sales"`
	MinLeftVolume      decimal.Decimal `json:"min_left_volume"`
	MinRightVolume     decimal.Decimal `json:"min_right_volume"`
	MinHashrate        decimal.Decimal `json:"min_hashrate"`
	MinDirectReferrals int             `json:"min_direct_referrals" binding:"min=0"`
	WeeklyCap          decimal.Decimal `json:"weekly_cap"`
	HardCap            decimal.Decimal `json:"hard_cap"`
}

func (r RankDefinitionRequest) apply(rank *models.RankDefinition) {
	rank.Level = r.Level
	rank.Name = r.Name
	rank.MinPersonalSales = r.MinPersonalSales
	rank.MinTeamSales = r.MinTeamSales
	rank.MinLeftVolume = r.MinLeftVolume
	rank.MinRightVolume = r.MinRightVolume
	rank.MinHashrate = r.MinHashrate
	rank.MinDirectReferrals = r.MinDirectReferrals
	rank.WeeklyCap = r.WeeklyCap
	rank.HardCap = r.HardCap
}

func (r RankDefinitionRequest) validate() error {
	for _, d := range []decimal.Decimal{r.MinPersonalSales, r.MinTeamSales, r.MinLeftVolume,
		r.MinRightVolume, r.MinHashrate, r.WeeklyCap, r.HardCap} {
		if d.IsNegative() {
			return errors.New("thresholds and caps must not be negative")
		}
	}
	return nil
}

// ListRankDefinitions returns the rank table ordered by level
func ListRankDefinitions(c *gin.Context) {
	var ranks []models.RankDefinition
	if err := dbconfig.DB.Order("level").Find(&ranks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ranks)
}

// CreateRankDefinition adds a rank
func CreateRankDefinition(c *gin.Context) {
	var request RankDefinitionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := request.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var count int64
	if err := dbconfig.DB.Model(&models.RankDefinition{}).Where("level = ?", request.Level).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Rank level already exists"})
		return
	}

	var rank models.RankDefinition
	request.apply(&rank)
	if err := dbconfig.DB.Create(&rank).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rank)
}

// UpdateRankDefinition updates an existing rank
func UpdateRankDefinition(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var request RankDefinitionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := request.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var rank models.RankDefinition
	if err := dbconfig.DB.First(&rank, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	var count int64
	err = dbconfig.DB.Model(&models.RankDefinition{}).
		Where("level = ? AND id <> ?", request.Level, rank.ID).
		Count(&count).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Rank level already exists"})
		return
	}

	request.apply(&rank)
	if err := dbconfig.DB.Save(&rank).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rank)
}

// DeleteRankDefinition deletes a rank
func DeleteRankDefinition(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	if err := dbconfig.DB.Delete(&models.RankDefinition{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}

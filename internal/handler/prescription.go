package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vcscsvcscs/rxtag/internal/service"
	"go.uber.org/zap"
)

// SetActiveRequest toggles every record of a prescription
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// PrescriptionHandler implements the prescription browsing endpoints
type PrescriptionHandler struct {
	browser *service.PrescriptionBrowser
	logger  *zap.Logger
}

// NewPrescriptionHandler creates a new PrescriptionHandler
func NewPrescriptionHandler(browser *service.PrescriptionBrowser, logger *zap.Logger) *PrescriptionHandler {
	return &PrescriptionHandler{
		browser: browser,
		logger:  logger,
	}
}

// GetApiV1UserPrescriptions lists a user's prescriptions
func (h *PrescriptionHandler) GetApiV1UserPrescriptions(c *gin.Context) {
	userID := c.Param("userId")

	summaries, err := h.browser.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list prescriptions", zap.Error(err), zap.String("user_id", userID))
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Failed to list prescriptions", err)
		return
	}

	c.JSON(http.StatusOK, summaries)
}

// GetApiV1UserPrescription returns the records of one prescription
func (h *PrescriptionHandler) GetApiV1UserPrescription(c *gin.Context) {
	userID, rxID := c.Param("userId"), c.Param("rxId")

	records, err := h.browser.Records(c.Request.Context(), userID, rxID)
	if err != nil {
		h.writeError(c, err, "Failed to get prescription", userID, rxID)
		return
	}

	c.JSON(http.StatusOK, records)
}

// PutApiV1UserPrescriptionActive marks a prescription active or inactive
func (h *PrescriptionHandler) PutApiV1UserPrescriptionActive(c *gin.Context) {
	userID, rxID := c.Param("userId"), c.Param("rxId")

	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	if err := h.browser.SetActive(c.Request.Context(), userID, rxID, *req.Active); err != nil {
		h.writeError(c, err, "Failed to update prescription", userID, rxID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"prescription_id": rxID,
		"active":          *req.Active,
	})
}

// DeleteApiV1UserPrescription deletes a prescription and all of its records
func (h *PrescriptionHandler) DeleteApiV1UserPrescription(c *gin.Context) {
	userID, rxID := c.Param("userId"), c.Param("rxId")

	if err := h.browser.Delete(c.Request.Context(), userID, rxID); err != nil {
		h.writeError(c, err, "Failed to delete prescription", userID, rxID)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *PrescriptionHandler) writeError(c *gin.Context, err error, message, userID, rxID string) {
	if errors.Is(err, service.ErrPrescriptionNotFound) {
		abortWithError(c, http.StatusNotFound, CodeNotFound, "Prescription not found", nil)
		return
	}

	h.logger.Error(message,
		zap.Error(err),
		zap.String("user_id", userID),
		zap.String("prescription_id", rxID),
	)
	abortWithError(c, http.StatusInternalServerError, CodeInternal, message, err)
}

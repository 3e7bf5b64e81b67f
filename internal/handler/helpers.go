package handler

import (
	"github.com/gin-gonic/gin"
)

// Error codes returned in ErrorResponse.Code
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeInternal              = "INTERNAL_ERROR"
	CodeNotFound              = "PRESCRIPTION_NOT_FOUND"
	CodeInvalidLocation       = "INVALID_LOCATION"
	CodeNoLastRead            = "NO_LAST_READ"
	CodeArchiveDisabled       = "ARCHIVE_DISABLED"
	CodeArchiveUnavailable    = "ARCHIVE_UNAVAILABLE"
	CodeIngestInterrupted     = "INGEST_INTERRUPTED"
	CodePharmaciesUnavailable = "PHARMACIES_UNAVAILABLE"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details,omitempty"`
}

// stringPtr creates a pointer to a string
func stringPtr(s string) *string {
	return &s
}

// abortWithError writes an ErrorResponse. err, if set, becomes the details.
func abortWithError(c *gin.Context, status int, code, message string, err error) {
	resp := ErrorResponse{Code: code, Message: message}
	if err != nil {
		resp.Details = stringPtr(err.Error())
	}
	c.AbortWithStatusJSON(status, resp)
}

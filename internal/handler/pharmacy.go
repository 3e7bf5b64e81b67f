package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vcscsvcscs/rxtag/internal/geo"
	"github.com/vcscsvcscs/rxtag/internal/service"
	"go.uber.org/zap"
)

// PharmacyHandler implements the pharmacy locator endpoints
type PharmacyHandler struct {
	locator *service.PharmacyLocator
	logger  *zap.Logger
}

// NewPharmacyHandler creates a new PharmacyHandler
func NewPharmacyHandler(locator *service.PharmacyLocator, logger *zap.Logger) *PharmacyHandler {
	return &PharmacyHandler{
		locator: locator,
		logger:  logger,
	}
}

// GetApiV1PharmaciesNearby ranks pharmacies around lat/lon. radius (meters)
// and k are optional.
func (h *PharmacyHandler) GetApiV1PharmaciesNearby(c *gin.Context) {
	q, err := parseNearbyQuery(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid query parameters", err)
		return
	}

	ranking, err := h.locator.Nearby(c.Request.Context(), q)
	switch {
	case errors.Is(err, geo.ErrInvalidLocation):
		abortWithError(c, http.StatusBadRequest, CodeInvalidLocation, "Location is out of range", err)
		return
	case err != nil:
		h.logger.Error("failed to rank pharmacies", zap.Error(err))
		abortWithError(c, http.StatusServiceUnavailable, CodePharmaciesUnavailable, "Pharmacy list unavailable", err)
		return
	}

	c.JSON(http.StatusOK, ranking)
}

// PostApiV1PharmaciesRefresh reloads the pharmacy point set
func (h *PharmacyHandler) PostApiV1PharmaciesRefresh(c *gin.Context) {
	if err := h.locator.Refresh(c.Request.Context()); err != nil {
		h.logger.Error("failed to refresh pharmacies", zap.Error(err))
		abortWithError(c, http.StatusServiceUnavailable, CodePharmaciesUnavailable, "Failed to reload pharmacies", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseNearbyQuery(c *gin.Context) (service.NearbyQuery, error) {
	var q service.NearbyQuery

	lat, err := requiredFloat(c, "lat")
	if err != nil {
		return q, err
	}
	lon, err := requiredFloat(c, "lon")
	if err != nil {
		return q, err
	}
	q.Location = geo.Location{Latitude: lat, Longitude: lon}

	if raw, ok := c.GetQuery("radius"); ok {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil || radius < 0 {
			return q, fmt.Errorf("radius must be a non-negative number of meters")
		}
		q.Radius = &radius
	}

	if raw, ok := c.GetQuery("k"); ok {
		k, err := strconv.Atoi(raw)
		if err != nil || k < 0 {
			return q, fmt.Errorf("k must be a non-negative integer")
		}
		q.K = &k
	}

	return q, nil
}

func requiredFloat(c *gin.Context, name string) (float64, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return v, nil
}

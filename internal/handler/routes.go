package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers groups every endpoint implementation
type Handlers struct {
	NFC          *NFCHandler
	Ingest       *IngestHandler
	Prescription *PrescriptionHandler
	Pharmacy     *PharmacyHandler
	Health       *HealthHandler
	Metrics      http.Handler
}

// RegisterRoutes mounts all endpoints on r. A nil Metrics handler leaves
// /metrics unregistered.
func RegisterRoutes(r gin.IRouter, h Handlers) {
	r.GET("/health", h.Health.GetHealth)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	v1 := r.Group("/api/v1")

	tags := v1.Group("/nfc")
	tags.GET("/status", h.NFC.GetApiV1NfcStatus)
	tags.POST("/read", h.NFC.PostApiV1NfcRead)
	tags.DELETE("/read", h.NFC.DeleteApiV1NfcRead)
	tags.POST("/write", h.NFC.PostApiV1NfcWrite)
	tags.POST("/wipe", h.NFC.PostApiV1NfcWipe)
	tags.POST("/restore", h.NFC.PostApiV1NfcRestore)
	tags.POST("/tag", h.NFC.PostApiV1NfcTag)
	tags.POST("/persist", h.NFC.PostApiV1NfcPersist)
	tags.DELETE("/last-read", h.NFC.DeleteApiV1NfcLastRead)

	v1.POST("/prescriptions/ingest", h.Ingest.PostApiV1PrescriptionsIngest)

	users := v1.Group("/users/:userId/prescriptions")
	users.GET("", h.Prescription.GetApiV1UserPrescriptions)
	users.GET("/:rxId", h.Prescription.GetApiV1UserPrescription)
	users.PUT("/:rxId/active", h.Prescription.PutApiV1UserPrescriptionActive)
	users.DELETE("/:rxId", h.Prescription.DeleteApiV1UserPrescription)

	v1.GET("/pharmacies/nearby", h.Pharmacy.GetApiV1PharmaciesNearby)
	v1.POST("/pharmacies/refresh", h.Pharmacy.PostApiV1PharmaciesRefresh)
}

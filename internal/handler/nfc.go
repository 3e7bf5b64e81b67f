package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vcscsvcscs/rxtag/internal/nfc"
	"github.com/vcscsvcscs/rxtag/internal/service"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

// SessionResponse is the observable state of the tag session
type SessionResponse struct {
	State    string                     `json:"state"`
	Intent   string                     `json:"intent,omitempty"`
	Status   string                     `json:"status"`
	Reading  bool                       `json:"reading"`
	LastRead *model.PrescriptionPayload `json:"last_read,omitempty"`
}

// WriteRequest carries the document for the next tag write. Payload wins
// over Document when both are set.
type WriteRequest struct {
	Payload  *model.PrescriptionPayload `json:"payload"`
	Document json.RawMessage            `json:"document"`
}

// TagEventRequest describes a tag reported by a reader agent
type TagEventRequest struct {
	UID      string `json:"uid" binding:"required"`
	Capacity int    `json:"capacity" binding:"min=0"`
	NDEF     *bool  `json:"ndef"`
	Writable *bool  `json:"writable"`
	Data     []byte `json:"data"`
}

// TagEventResponse is the outcome of a tag contact. Data holds the tag
// contents after the contact so the agent can write them back.
type TagEventResponse struct {
	Intent  string                     `json:"intent"`
	Status  string                     `json:"status"`
	Ignored bool                       `json:"ignored"`
	Error   string                     `json:"error,omitempty"`
	Payload *model.PrescriptionPayload `json:"payload,omitempty"`
	Data    []byte                     `json:"data"`
}

// PersistRequest names the user the last read prescription is stored for
type PersistRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// RestoreRequest selects an archived prescription to write to the next tag
type RestoreRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	PrescriptionID string `json:"prescription_id" binding:"required"`
}

// NFCHandler exposes the tag session over HTTP
type NFCHandler struct {
	session  *nfc.Session
	ingestor *service.Ingestor
	archive  *service.TagArchive
	logger   *zap.Logger
}

// NewNFCHandler creates a new NFCHandler. archive may be nil.
func NewNFCHandler(session *nfc.Session, ingestor *service.Ingestor, archive *service.TagArchive, logger *zap.Logger) *NFCHandler {
	return &NFCHandler{
		session:  session,
		ingestor: ingestor,
		archive:  archive,
		logger:   logger,
	}
}

func sessionResponse(snap nfc.Snapshot) SessionResponse {
	resp := SessionResponse{
		State:    string(snap.State.Kind),
		Status:   snap.Status,
		Reading:  snap.Reading,
		LastRead: snap.LastRead,
	}
	if snap.State.Kind != nfc.StateIdle {
		resp.Intent = snap.State.Intent.String()
	}
	return resp
}

func (h *NFCHandler) respondWithSession(c *gin.Context, status int) {
	c.JSON(status, sessionResponse(h.session.Snapshot()))
}

// GetApiV1NfcStatus returns the session state
func (h *NFCHandler) GetApiV1NfcStatus(c *gin.Context) {
	h.respondWithSession(c, http.StatusOK)
}

// PostApiV1NfcRead arms reading
func (h *NFCHandler) PostApiV1NfcRead(c *gin.Context) {
	h.session.StartReading()
	h.respondWithSession(c, http.StatusOK)
}

// DeleteApiV1NfcRead disarms reading
func (h *NFCHandler) DeleteApiV1NfcRead(c *gin.Context) {
	h.session.StopReading()
	h.respondWithSession(c, http.StatusOK)
}

// PostApiV1NfcWrite queues a document for the next tag
func (h *NFCHandler) PostApiV1NfcWrite(c *gin.Context) {
	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	var doc []byte
	switch {
	case req.Payload != nil:
		var err error
		doc, err = json.Marshal(req.Payload)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid payload", err)
			return
		}
	case len(req.Document) > 0 && string(req.Document) != "null":
		doc = req.Document
	default:
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Either payload or document is required", nil)
		return
	}

	h.session.PrepareToWrite(string(doc))
	h.respondWithSession(c, http.StatusAccepted)
}

// PostApiV1NfcWipe queues a wipe for the next tag
func (h *NFCHandler) PostApiV1NfcWipe(c *gin.Context) {
	h.session.PrepareToWipe()
	h.respondWithSession(c, http.StatusAccepted)
}

// PostApiV1NfcTag feeds one tag contact into the session
func (h *NFCHandler) PostApiV1NfcTag(c *gin.Context) {
	var req TagEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	tag := nfc.NewMemoryTag(req.UID, req.Capacity, req.Data)
	if req.NDEF != nil {
		tag.NDEF = *req.NDEF
	}
	if req.Writable != nil {
		tag.Writable = *req.Writable
	}

	out := h.session.OnTagPresence(c.Request.Context(), tag)

	resp := TagEventResponse{
		Intent:  out.Intent.String(),
		Status:  out.Status,
		Ignored: out.Ignored,
		Payload: out.Payload,
		Data:    tag.Data(),
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}

	h.logger.Info("tag contact handled",
		zap.String("uid", req.UID),
		zap.String("intent", resp.Intent),
		zap.String("status", resp.Status),
		zap.Bool("ignored", resp.Ignored),
	)
	c.JSON(http.StatusOK, resp)
}

// PostApiV1NfcPersist ingests the last read prescription for a user
func (h *NFCHandler) PostApiV1NfcPersist(c *gin.Context) {
	var req PersistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	payload, gen, ok := h.session.LastReadGen()
	if !ok {
		abortWithError(c, http.StatusConflict, CodeNoLastRead, "No prescription has been read", nil)
		return
	}

	result, err := h.ingestor.Ingest(c.Request.Context(), payload, req.UserID)
	if err != nil {
		writeIngestError(c, h.logger, err)
		return
	}

	// a tag read while ingesting replaces the payload and must survive
	if !h.session.DiscardLastReadIf(gen) {
		h.logger.Info("kept newer tag read after persist",
			zap.String("prescription_id", payload.ID),
			zap.String("user_id", req.UserID),
		)
	}
	c.JSON(http.StatusCreated, result)
}

// DeleteApiV1NfcLastRead discards the last read prescription
func (h *NFCHandler) DeleteApiV1NfcLastRead(c *gin.Context) {
	h.session.DiscardLastRead()
	c.Status(http.StatusNoContent)
}

// PostApiV1NfcRestore queues an archived prescription for the next tag
func (h *NFCHandler) PostApiV1NfcRestore(c *gin.Context) {
	if h.archive == nil {
		abortWithError(c, http.StatusNotImplemented, CodeArchiveDisabled, "Tag archive is not configured", nil)
		return
	}

	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	_, payload, err := h.archive.RestorePrescription(c.Request.Context(), req.UserID, req.PrescriptionID)
	if err != nil {
		h.logger.Error("failed to restore tag archive",
			zap.Error(err),
			zap.String("user_id", req.UserID),
			zap.String("prescription_id", req.PrescriptionID),
		)
		status := http.StatusBadGateway
		if errors.Is(err, nfc.ErrMalformedPayload) {
			status = http.StatusUnprocessableEntity
		}
		abortWithError(c, status, CodeArchiveUnavailable, "Failed to restore archived prescription", err)
		return
	}

	doc, err := json.Marshal(payload)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Failed to encode archived prescription", err)
		return
	}

	h.session.PrepareToWrite(string(doc))
	h.respondWithSession(c, http.StatusAccepted)
}

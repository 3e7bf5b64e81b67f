package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vcscsvcscs/rxtag/internal/service"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

type rejectionReply struct {
	status  int
	code    string
	message string
}

// rejectionReplies maps ingestion rejections to HTTP replies
var rejectionReplies = map[service.RejectionReason]rejectionReply{
	service.OwnershipMismatch:         {http.StatusForbidden, "OWNERSHIP_MISMATCH", "Prescription belongs to another patient"},
	service.NoDataToPersist:           {http.StatusUnprocessableEntity, "NO_DATA_TO_PERSIST", "Prescription has no medications"},
	service.PartialPersistenceFailure: {http.StatusInternalServerError, "PARTIAL_PERSISTENCE_FAILURE", "Some medications could not be stored"},
	service.InvalidMedicationLine:     {http.StatusUnprocessableEntity, "INVALID_MEDICATION_LINE", "Prescription has an invalid medication line"},
}

var defaultRejectionReply = rejectionReply{http.StatusInternalServerError, CodeInternal, "Failed to ingest prescription"}

// IngestRequest asks to persist a prescription payload for a user
type IngestRequest struct {
	UserID  string                    `json:"user_id" binding:"required"`
	Payload model.PrescriptionPayload `json:"payload"`
}

// IngestHandler implements the prescription ingestion endpoint
type IngestHandler struct {
	ingestor *service.Ingestor
	logger   *zap.Logger
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(ingestor *service.Ingestor, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{
		ingestor: ingestor,
		logger:   logger,
	}
}

// PostApiV1PrescriptionsIngest persists a prescription that was read elsewhere
func (h *IngestHandler) PostApiV1PrescriptionsIngest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	result, err := h.ingestor.Ingest(c.Request.Context(), req.Payload, req.UserID)
	if err != nil {
		writeIngestError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func writeIngestError(c *gin.Context, logger *zap.Logger, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("ingestion interrupted", zap.Error(err))
		abortWithError(c, http.StatusServiceUnavailable, CodeIngestInterrupted,
			"Stopped waiting for the prescription to be stored", err)
		return
	}

	reply := defaultRejectionReply
	var rej *service.Rejection
	if errors.As(err, &rej) {
		if r, ok := rejectionReplies[rej.Reason]; ok {
			reply = r
		}
	}

	logger.Error("failed to ingest prescription", zap.Error(err), zap.String("code", reply.code))
	abortWithError(c, reply.status, reply.code, reply.message, err)
}

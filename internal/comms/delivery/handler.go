package delivery

import (
	"errors"
	"net/http"
	"strconv"

	"dealsync-backend/internal/comms/domain"
	commsdto "dealsync-backend/internal/comms/dto"
	"dealsync-backend/internal/comms/usecase"

	"github.com/gin-gonic/gin"
)

type CommsHandler struct {
	commsUsecase usecase.CommsUsecase
}

func NewCommsHandler(commsUsecase usecase.CommsUsecase) *CommsHandler {
	return &CommsHandler{
		commsUsecase: commsUsecase,
	}
}

// SyncTransaction handles POST /api/sync/transactions/:id
func (h *CommsHandler) SyncTransaction(c *gin.Context) {
	transactionID := c.Param("id")

	result, err := h.commsUsecase.SyncTransaction(c.Request.Context(), transactionID, nil)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, commsdto.SyncResponse{
		EmailsFetched: result.EmailsFetched,
		EmailsStored:  result.EmailsStored,
		Linked:        result.Linked,
		Partial:       result.Partial,
		Error:         result.Error,
	})
}

// ScanUser handles POST /api/sync/scan
func (h *CommsHandler) ScanUser(c *gin.Context) {
	userID := c.GetString("userID")

	result, err := h.commsUsecase.ScanUser(c.Request.Context(), userID, nil)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, commsdto.ScanResponse{
		Fetched: result.Fetched,
		Stored:  result.Stored,
		Partial: result.Partial,
	})
}

// CancelScan handles POST /api/sync/scan/cancel
func (h *CommsHandler) CancelScan(c *gin.Context) {
	userID := c.GetString("userID")
	h.commsUsecase.CancelScan(userID)
	c.JSON(http.StatusOK, gin.H{"message": "scan cancellation requested"})
}

// BackfillAttachments handles POST /api/sync/attachments/backfill
func (h *CommsHandler) BackfillAttachments(c *gin.Context) {
	userID := c.GetString("userID")

	result, err := h.commsUsecase.BackfillMissingAttachments(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AutoLinkTransaction handles POST /api/transactions/:id/autolink
func (h *CommsHandler) AutoLinkTransaction(c *gin.Context) {
	transactionID := c.Param("id")

	result, err := h.commsUsecase.AutoLinkTransaction(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ManualLink handles POST /api/transactions/:id/links
func (h *CommsHandler) ManualLink(c *gin.Context) {
	transactionID := c.Param("id")

	var req commsdto.ManualLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.commsUsecase.ManualLink(c.Request.Context(), transactionID, req.MessageID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "linked"})
}

// Unlink handles DELETE /api/transactions/:id/links/:messageId
// The ignore query flag additionally records the message so future auto-link
// passes leave it alone.
func (h *CommsHandler) Unlink(c *gin.Context) {
	transactionID := c.Param("id")
	messageID := c.Param("messageId")
	ignore := c.Query("ignore") == "true"

	if err := h.commsUsecase.Unlink(c.Request.Context(), transactionID, messageID, ignore); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "unlinked"})
}

// SearchMessages handles GET /api/messages/search
func (h *CommsHandler) SearchMessages(c *gin.Context) {
	userID := c.GetString("userID")
	query := c.Query("q")

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := h.commsUsecase.SearchStoredMessages(userID, query, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, commsdto.SearchResponse{
		Messages: messages,
		Total:    len(messages),
		Query:    query,
	})
}

// respondError maps domain errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	var cooldownErr *usecase.CooldownError
	if errors.As(err, &cooldownErr) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":        cooldownErr.Error(),
			"remaining_ms": cooldownErr.Remaining.Milliseconds(),
		})
		return
	}

	if domain.IsValidationError(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if domain.IsNotFoundError(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if domain.IsAuthError(err) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

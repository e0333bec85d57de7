package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/models"
)

const (
	maxMessageLength   = 2000
	defaultHistorySize = 10
	maxHistorySize     = 50
)

type errorResponse struct {
	Error string              `json:"error"`
	Code  apperrors.ErrorCode `json:"code,omitempty"`
}

type chatRequest struct {
	ThreadID string `json:"threadId"`
	Message  string `json:"message"`
}

type slotPatchRequest struct {
	Slots           map[string]string `json:"slots"`
	ExpectedMissing []string          `json:"expectedMissing"`
	LastIntent      string            `json:"lastIntent"`
}

type threadInfoResponse struct {
	ThreadID   string        `json:"threadId"`
	LastIntent models.Intent `json:"lastIntent"`
}

type chatResponse struct {
	ThreadID  string            `json:"threadId"`
	Done      bool              `json:"done"`
	Reply     string            `json:"reply"`
	Citations []models.Citation `json:"citations"`
}

func writeError(c *gin.Context, status int, code apperrors.ErrorCode, msg string) {
	c.JSON(status, errorResponse{Error: msg, Code: code})
}

// isValidThreadID accepts uuids and other short opaque IDs.
func isValidThreadID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, apperrors.ErrCodeInvalidTurnInput, "request body must be JSON with a message")
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.New().String()
	}
	if !isValidThreadID(req.ThreadID) {
		writeError(c, http.StatusBadRequest, apperrors.ErrCodeInvalidTurnInput, "invalid threadId")
		return
	}
	if len(req.Message) > maxMessageLength {
		writeError(c, http.StatusBadRequest, apperrors.ErrCodeInvalidTurnInput, "message is too long")
		return
	}

	unlock := s.locks.Lock(req.ThreadID)
	defer unlock()

	res, err := s.turns.ProcessTurn(c.Request.Context(), req.ThreadID, req.Message)
	if err != nil {
		s.writeTurnError(c, err)
		return
	}

	citations := res.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	c.JSON(http.StatusOK, chatResponse{
		ThreadID:  req.ThreadID,
		Done:      res.Done,
		Reply:     res.Reply,
		Citations: citations,
	})
}

func (s *Server) writeTurnError(c *gin.Context, err error) {
	var se *apperrors.StandardError
	if errors.As(err, &se) && se.Code == apperrors.ErrCodeInvalidTurnInput {
		writeError(c, http.StatusBadRequest, se.Code, se.Details)
		return
	}
	s.logger.Error("turn failed", map[string]interface{}{"error": err.Error()})
	writeError(c, http.StatusInternalServerError, apperrors.CodeOf(err), "internal error")
}

func (s *Server) receipts(c *gin.Context) {
	threadID := c.Param("id")
	if !isValidThreadID(threadID) {
		writeError(c, http.StatusBadRequest, apperrors.ErrCodeInvalidTurnInput, "invalid thread id")
		return
	}
	receipts, err := s.store.GetReceipts(c.Request.Context(), threadID)
	if err != nil {
		s.logger.Error("failed to read receipts", map[string]interface{}{"threadId": threadID, "error": err.Error()})
		writeError(c, http.StatusInternalServerError, apperrors.CodeOf(err), "internal error")
		return
	}
	c.JSON(http.StatusOK, receipts)
}

func (s *Server) receiptHistory(c *gin.Context) {
	threadID := c.Param("id")
	if !isValidThreadID(threadID) {
		writeError(c, http.StatusBadRequest, apperrors.ErrCodeInvalidTurnInput, "invalid thread id")
		return
	}
	if s.history == nil {
		writeError(c, http.StatusNotImplemented, "", "receipt archive is disabled")
		return
	}

	limit := defaultHistorySize
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxHistorySize {
		limit = maxHistorySize
	}

	history, err := s.history.Recent(c.Request.Context(), threadID, limit)
	if err != nil {
		s.logger.Error("failed to read receipt history", map[string]interface{}{"threadId": threadID, "error": err.Error()})
		writeError(c, http.StatusInternalServerError, apperrors.CodeOf(err), "internal error")
		return
	}
	if history == nil {
		history = []models.Receipts{}
	}
	c.JSON(http.StatusOK, gin.H{"threadId": threadID, "receipts": history})
}

func (s *Server) resetThread(c *gin.Context) {
	threadID := c.Param("id")
	if !isValidThreadID(threadID) {
		writeError(c, http.StatusBadRequest, apperrors.ErrCodeInvalidTurnInput, "invalid thread id")
		return
	}

	unlock := s.locks.Lock(threadID)
	defer unlock()

	if err := s.store.Delete(c.Request.Context(), threadID); err != nil {
		s.logger.Error("failed to reset thread", map[string]interface{}{"threadId": threadID, "error": err.Error()})
		writeError(c, http.StatusInternalServerError, apperrors.CodeOf(err), "internal error")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) threadInfo(c *gin.Context) {
	threadID := c.Param("id")
	if !isValidThreadID(threadID) {
		writeError(c, http.StatusBadRequest, apperrors.ErrCodeInvalidTurnInput, "invalid thread id")
		return
	}
	intent, err := s.store.GetLastIntent(c.Request.Context(), threadID)
	if err != nil {
		s.logger.Error("failed to read thread", map[string]interface{}{"threadId": threadID, "error": err.Error()})
		writeError(c, http.StatusInternalServerError, apperrors.CodeOf(err), "internal error")
		return
	}
	c.JSON(http.StatusOK, threadInfoResponse{ThreadID: threadID, LastIntent: intent})
}

// patchSlots lets a client pre-fill slots it already knows, for example from
// a booking form, before the next chat turn.
func (s *Server) patchSlots(c *gin.Context) {
	threadID := c.Param("id")
	if !isValidThreadID(threadID) {
		writeError(c, http.StatusBadRequest, apperrors.ErrCodeInvalidTurnInput, "invalid thread id")
		return
	}
	var req slotPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, apperrors.ErrCodeInvalidTurnInput, "request body must be JSON")
		return
	}
	intent := models.Intent(req.LastIntent)
	if req.LastIntent != "" && !intent.Valid() {
		writeError(c, http.StatusBadRequest, apperrors.ErrCodeInvalidTurnInput, "unknown lastIntent")
		return
	}

	unlock := s.locks.Lock(threadID)
	defer unlock()

	ctx := c.Request.Context()
	if err := s.store.Update(ctx, threadID, req.Slots, req.ExpectedMissing); err != nil {
		s.logger.Error("failed to update slots", map[string]interface{}{"threadId": threadID, "error": err.Error()})
		writeError(c, http.StatusInternalServerError, apperrors.CodeOf(err), "internal error")
		return
	}
	if req.LastIntent != "" {
		if err := s.store.SetLastIntent(ctx, threadID, intent); err != nil {
			s.logger.Error("failed to set last intent", map[string]interface{}{"threadId": threadID, "error": err.Error()})
			writeError(c, http.StatusInternalServerError, apperrors.CodeOf(err), "internal error")
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearReceipts(c *gin.Context) {
	threadID := c.Param("id")
	if !isValidThreadID(threadID) {
		writeError(c, http.StatusBadRequest, apperrors.ErrCodeInvalidTurnInput, "invalid thread id")
		return
	}

	unlock := s.locks.Lock(threadID)
	defer unlock()

	if err := s.store.SetReceipts(c.Request.Context(), threadID, models.Receipts{}); err != nil {
		s.logger.Error("failed to clear receipts", map[string]interface{}{"threadId": threadID, "error": err.Error()})
		writeError(c, http.StatusInternalServerError, apperrors.CodeOf(err), "internal error")
		return
	}
	c.Status(http.StatusNoContent)
}

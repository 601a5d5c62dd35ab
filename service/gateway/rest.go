package gateway

import (
	"net/http"
	"strings"

	"PPRealtime/middleware/security"
	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handle adapts an error-returning handler; errors become a CodeError body.
func (s *Server) handle(h func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h(c); err != nil {
			s.writeError(c, err)
		}
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	ce, ok := errs.Code(err)
	if !ok {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	st := httpStatus(ce.Code)
	if st >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(st, ce)
}

func httpStatus(code int) int {
	switch code {
	case errs.ArgsError:
		return http.StatusBadRequest
	case errs.RecordNotFoundError, errs.SessionNotFoundError:
		return http.StatusNotFound
	case errs.UnauthenticatedErr, errs.TokenInvalidError:
		return http.StatusUnauthorized
	case errs.NotParticipantError:
		return http.StatusForbidden
	case errs.SessionBoundError, errs.TooManySessionsError:
		return http.StatusConflict
	case errs.ServiceUnavailableCode:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// POST /api/messages/:id/status {"status":"delivered"|"read"}
func (s *Server) advanceStatus(c *gin.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	st, ok := model.ParseStatus(req.Status)
	if !ok {
		return errs.ErrArgs.WrapMsg("unknown status", "status", req.Status)
	}
	changed, err := s.messages.AdvanceStatus(c.Request.Context(), c.Param("id"), st, security.UserID(c))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
	return nil
}

// POST /api/conversations/:id/read
func (s *Server) markConversationRead(c *gin.Context) error {
	n, err := s.messages.MarkConversationRead(c.Request.Context(), c.Param("id"), security.UserID(c))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
	return nil
}

// POST /api/messages/read {"messageIds":[...]}
func (s *Server) markRead(c *gin.Context) error {
	var req struct {
		MessageIDs []string `json:"messageIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	n, err := s.messages.MarkRead(c.Request.Context(), req.MessageIDs, security.UserID(c))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
	return nil
}

// GET /api/presence?userIds=a,b
func (s *Server) presence(c *gin.Context) error {
	var ids []string
	for _, part := range c.QueryArray("userIds") {
		for _, id := range strings.Split(part, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return errs.ErrArgs.WrapMsg("userIds required")
	}
	c.JSON(http.StatusOK, gin.H{"onlineUsers": s.core.OnlineStatus(c.Request.Context(), ids)})
	return nil
}

// GET /api/messages/:id/summary, sender only
func (s *Server) summary(c *gin.Context) error {
	sum, err := s.messages.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if sum.SenderID != security.UserID(c) {
		return errs.ErrNotParticipant.WrapMsg("summary is visible to the sender only", "message", sum.MessageID)
	}
	c.JSON(http.StatusOK, gin.H{
		"messageId":      sum.MessageID,
		"conversationId": sum.ConversationID,
		"recipients":     sum.Recipients,
		"delivered":      sum.Delivered,
		"read":           sum.Read,
		"status":         sum.Status.String(),
	})
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"node":     s.conf.NodeID,
		"sessions": s.core.Sessions().Len(),
		"rooms":    s.core.Rooms().Len(),
	})
}

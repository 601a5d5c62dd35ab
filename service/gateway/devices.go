package gateway

import (
	"context"
	"net/http"

	"PPRealtime/middleware/security"
	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
)

// Devices stores push tokens and preferences (module/user).
type Devices interface {
	RegisterToken(ctx context.Context, t model.DeviceToken) error
	DeactivateToken(ctx context.Context, token string) error
	ActiveTokens(ctx context.Context, userID string) ([]model.DeviceToken, error)
	Settings(ctx context.Context, userID string) (model.NotificationSettings, error)
	SaveSettings(ctx context.Context, st model.NotificationSettings) error
}

// POST /api/devices {"token":"..","platform":"IOS|ANDROID"}
func (s *Server) registerDevice(c *gin.Context) error {
	var req struct {
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	t := model.DeviceToken{
		UserID:   security.UserID(c),
		Token:    req.Token,
		Platform: model.ParsePlatform(req.Platform),
	}
	if err := s.devices.RegisterToken(c.Request.Context(), t); err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"registered": true})
	return nil
}

// DELETE /api/devices/:token, own tokens only
func (s *Server) deactivateDevice(c *gin.Context) error {
	token := c.Param("token")
	owned, err := s.devices.ActiveTokens(c.Request.Context(), security.UserID(c))
	if err != nil {
		return err
	}
	found := false
	for _, t := range owned {
		if t.Token == token {
			found = true
			break
		}
	}
	if !found {
		return errs.ErrRecordNotFound.WrapMsg("no such device", "user", security.UserID(c))
	}
	if err := s.devices.DeactivateToken(c.Request.Context(), token); err != nil {
		return err
	}
	c.Status(http.StatusNoContent)
	return nil
}

// GET /api/notification-settings
func (s *Server) getSettings(c *gin.Context) error {
	st, err := s.devices.Settings(c.Request.Context(), security.UserID(c))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, st)
	return nil
}

// PUT /api/notification-settings
func (s *Server) saveSettings(c *gin.Context) error {
	uid := security.UserID(c)
	st, err := s.devices.Settings(c.Request.Context(), uid)
	if err != nil {
		return err
	}
	// partial update over the stored (or default) preferences
	if err := c.ShouldBindJSON(&st); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	st.UserID = uid
	if err := s.devices.SaveSettings(c.Request.Context(), st); err != nil {
		return err
	}
	c.JSON(http.StatusOK, st)
	return nil
}

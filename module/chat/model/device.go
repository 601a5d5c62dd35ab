package model

import "strings"

type Platform string

const (
	PlatformIOS     Platform = "IOS"
	PlatformAndroid Platform = "ANDROID"
)

func ParsePlatform(s string) Platform {
	if strings.EqualFold(strings.TrimSpace(s), string(PlatformIOS)) {
		return PlatformIOS
	}
	return PlatformAndroid
}

type DeviceToken struct {
	UserID   string   `json:"userId"`
	Token    string   `json:"token"`
	Platform Platform `json:"platform"`
	Active   bool     `json:"isActive"`
}

// NotificationSettings are per-user push preferences.
type NotificationSettings struct {
	UserID               string `json:"userId"`
	Enabled              bool   `json:"enabled"`
	ShowPreview          bool   `json:"showPreview"`
	MessageNotifications bool   `json:"messageNotifications"`
	GroupNotifications   bool   `json:"groupNotifications"`
	Sound                bool   `json:"sound"`
}

// DefaultNotificationSettings applies when a user never saved preferences.
func DefaultNotificationSettings(userID string) NotificationSettings {
	return NotificationSettings{
		UserID:               userID,
		Enabled:              true,
		ShowPreview:          true,
		MessageNotifications: true,
		GroupNotifications:   true,
		Sound:                true,
	}
}

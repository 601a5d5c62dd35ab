package notify

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"PPRealtime/module/chat/model"
)

// Payload is what a push provider delivers to one device.
type Payload struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	ImageURL string            `json:"imageUrl,omitempty"`
	Sound    string            `json:"sound"`
	Data     map[string]string `json:"data"`
}

const (
	defaultSenderName = "User"
	hiddenPreview     = "New message"
	soundDefault      = "default"
	soundRingtone     = "ringtone"
)

// MessagePayload builds the new-message notification. previewLen bounds the
// body in runes.
func MessagePayload(msg *model.Message, previewLen int, showPreview bool) Payload {
	sender := msg.SenderName
	if sender == "" {
		sender = defaultSenderName
	}
	title := sender
	if msg.IsGroup() && msg.GroupName != "" {
		title = sender + " in " + msg.GroupName
	}
	body := hiddenPreview
	if showPreview {
		body = previewOf(msg, previewLen)
	}
	return Payload{
		Title: title,
		Body:  body,
		Sound: soundDefault,
		Data: map[string]string{
			"type":            "new_message",
			"conversation_id": msg.ConversationID,
			"message_id":      msg.ID,
			"sender_name":     sender,
			"is_group":        strconv.FormatBool(msg.IsGroup()),
		},
	}
}

func previewOf(msg *model.Message, n int) string {
	if msg.Type != model.MessageText && msg.Type != "" {
		return "Sent a " + strings.ToLower(string(msg.Type))
	}
	return truncate(msg.Content, n)
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// CallPayload announces an incoming audio or video call.
func CallPayload(callerID, callerName string, video bool, avatar string) Payload {
	kind, display := "audio", "Audio"
	if video {
		kind, display = "video", "Video"
	}
	return Payload{
		Title:    "Incoming " + display + " Call",
		Body:     callerName + " is calling you",
		ImageURL: avatar,
		Sound:    soundRingtone,
		Data: map[string]string{
			"type":        "incoming_call",
			"caller_id":   callerID,
			"caller_name": callerName,
			"call_type":   kind,
		},
	}
}

func GroupInvitePayload(inviterName, groupID, groupName string) Payload {
	return Payload{
		Title: "Group Invitation",
		Body:  inviterName + " invited you to join " + groupName,
		Sound: soundDefault,
		Data: map[string]string{
			"type":         "group_invite",
			"group_id":     groupID,
			"group_name":   groupName,
			"inviter_name": inviterName,
		},
	}
}

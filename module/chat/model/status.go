package model

import "strings"

// Status is the per-recipient delivery lifecycle. Values are ordered.
type Status int32

const (
	StatusUnknown   Status = 0
	StatusSent      Status = 1
	StatusDelivered Status = 2
	StatusRead      Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "unknown"
	}
}

func (s Status) Valid() bool { return s >= StatusSent && s <= StatusRead }

// ParseStatus accepts sent|delivered|read in any case.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "read":
		return StatusRead, true
	default:
		return StatusUnknown, false
	}
}

package models

import (
	"time"
)

// NotificationPriority represents notification urgency
type NotificationPriority string

const (
	NotificationPriorityHigh   NotificationPriority = "high"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityLow    NotificationPriority = "low"
)

// Notification is a user-facing notice derived from pipeline events
type Notification struct {
	ID        string               `json:"id"`
	OwnerID   string               `json:"owner_id"`
	Priority  NotificationPriority `json:"priority"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	CreatedAt time.Time            `json:"created_at"`
}

// PriorityForRisk maps a risk severity to a notification priority
func PriorityForRisk(level RiskLevel) NotificationPriority {
	switch level {
	case RiskLevelCritical, RiskLevelHigh:
		return NotificationPriorityHigh
	case RiskLevelMedium:
		return NotificationPriorityMedium
	default:
		return NotificationPriorityLow
	}
}

// IsValid checks if the priority is known
func (p NotificationPriority) IsValid() bool {
	switch p {
	case NotificationPriorityHigh, NotificationPriorityMedium, NotificationPriorityLow:
		return true
	default:
		return false
	}
}

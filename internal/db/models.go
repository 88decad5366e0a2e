package db

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeMessage            NotificationType = "message"
	NotificationTypeCareUpdate         NotificationType = "care_update"
	NotificationTypeEmergencyAlert     NotificationType = "emergency_alert"
	NotificationTypeSystemAnnouncement NotificationType = "system_announcement"
	NotificationTypeFamilyActivity     NotificationType = "family_activity"
	NotificationTypeAssignmentChange   NotificationType = "assignment_change"
)

type DeliveryChannel string

const (
	DeliveryChannelLive  DeliveryChannel = "live"
	DeliveryChannelEmail DeliveryChannel = "email"
)

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

type UserRole string

const (
	UserRoleAdmin     UserRole = "admin"
	UserRoleVolunteer UserRole = "volunteer"
	UserRoleMember    UserRole = "member"
)

type Notification struct {
	ID         int64            `json:"id"`
	UserID     string           `json:"user_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Payload    []byte           `json:"payload,omitempty"`
	Actionable bool             `json:"actionable"`
	ActionURL  *string          `json:"action_url"`
	IsRead     bool             `json:"is_read"`
	ReadAt     *time.Time       `json:"read_at"`
	ExpiresAt  *time.Time       `json:"expires_at"`
	CreatedAt  time.Time        `json:"created_at"`
}

type DeliveryRecord struct {
	ID             int64           `json:"id"`
	NotificationID int64           `json:"notification_id"`
	UserID         string          `json:"user_id"`
	Channel        DeliveryChannel `json:"channel"`
	Status         DeliveryStatus  `json:"status"`
	LatencyMs      *int64          `json:"latency_ms"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PendingDelivery joins an undelivered record with its notification so the
// stream endpoint can replay the payload on reconnect in one pass.
type PendingDelivery struct {
	Delivery     DeliveryRecord `json:"delivery"`
	Notification Notification   `json:"notification"`
}

type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FullName        string     `json:"full_name"`
	Role            UserRole   `json:"role"`
	Timezone        string     `json:"timezone"`
	QuietHoursStart *string    `json:"quiet_hours_start"`
	QuietHoursEnd   *string    `json:"quiet_hours_end"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

type NotificationPreference struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Channel   DeliveryChannel  `json:"channel"`
	Enabled   bool             `json:"enabled"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

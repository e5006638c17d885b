package models

import "gorm.io/datatypes"

// AuditLog records sensitive user and admin operations.
type AuditLog struct {
	Base
	UserID       string         `gorm:"size:36;index" json:"user_id"`
	Action       string         `gorm:"size:50;not null" json:"action"`
	ResourceType string         `gorm:"size:50;not null" json:"resource_type"`
	ResourceID   string         `gorm:"size:64" json:"resource_id"`
	IPAddress    string         `gorm:"size:45" json:"ip_address"`
	Changes      datatypes.JSON `json:"changes,omitempty"`
}

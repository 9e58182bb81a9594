package models

import "time"

// WebhookEvent captures every inbound gateway payload verbatim, before
// signature verification. Write-once, append-only; business logic never reads
// it back, it exists for audit and replay.
type WebhookEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	EventType      string    `gorm:"type:varchar(100);default:'';index" json:"event_type"`
	PayloadJSON    string    `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid bool      `gorm:"default:false;index" json:"signature_valid"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// ProcessedEvent is the dedupe set for at-least-once webhook delivery. One row
// per externally-supplied event key, inserted in the same transaction as the
// state mutation it guards; a conflicting insert marks the event a duplicate.
type ProcessedEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventKey  string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_processed_events_key" json:"event_key"`
	EventType string    `gorm:"type:varchar(100);not null" json:"event_type"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

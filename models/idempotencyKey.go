package models

import "time"

// IdempotencyKey makes posting handlers at-most-once under retries: the unique
// (handler_name, message_id) pair is claimed with an INSERT before any work.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	HandlerName string            `gorm:"size:100;not null;uniqueIndex:idx_idem_handler_message,priority:1" json:"handler_name"`
	MessageId   string            `gorm:"size:100;not null;uniqueIndex:idx_idem_handler_message,priority:2" json:"message_id"`
	Status      IdempotencyStatus `gorm:"type:enum('STARTED','SUCCEEDED','FAILED');not null" json:"status"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

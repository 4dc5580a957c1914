package model

import "time"

// ChatMessage is one persisted chat message. Target is empty for global
// chat and holds the recipient username for direct messages.
type ChatMessage struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Sender    string    `json:"sender" gorm:"size:100;index;not null"`
	Target    string    `json:"target,omitempty" gorm:"size:100;index"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"timestamp" gorm:"index"`
}

// TableName specifies the table name for GORM.
func (ChatMessage) TableName() string {
	return "chats"
}

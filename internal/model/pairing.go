package model

import (
	"time"
)

// PairingCode 一次性配对码：把聊天身份绑定到所有者时消费，过期失效
type PairingCode struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Code      string    `gorm:"size:16;uniqueIndex;not null" json:"code"`
	OwnerID   uint      `gorm:"not null" json:"owner_id"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (PairingCode) TableName() string {
	return "pairing_codes"
}

// TelegramBinding 聊天会话与所有者的绑定关系
type TelegramBinding struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ChatID    string    `gorm:"size:64;uniqueIndex;not null" json:"chat_id"`
	OwnerID   uint      `gorm:"not null" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (TelegramBinding) TableName() string {
	return "telegram_bindings"
}

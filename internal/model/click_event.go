package model

import (
	"time"
)

// ClickEvent 点击事件，每次成功解析写入一条，只增不改
type ClickEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	LinkID    uint      `gorm:"not null;index" json:"link_id"`
	Referrer  string    `gorm:"type:text" json:"referrer"`
	UserAgent string    `gorm:"type:text" json:"user_agent"`
	IPAddress string    `gorm:"size:45" json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (ClickEvent) TableName() string {
	return "click_events"
}

package model

import (
	"time"
)

// Link 短链接模型
// short_code 上的唯一索引是短码全局唯一性的最终仲裁者，
// 创建和修改路径都依赖它，应用层的预检查只是快速失败。
type Link struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	ShortCode   string     `gorm:"size:64;uniqueIndex;not null" json:"short_code"`
	OriginalURL string     `gorm:"type:text;not null" json:"original_url"`
	OwnerID     *uint      `gorm:"index" json:"owner_id"` // 可为空，允许匿名创建
	ClickCount  int64      `gorm:"default:0" json:"click_count"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (Link) TableName() string {
	return "links"
}

// Resolvable 判断链接当前是否可被解析
func (l *Link) Resolvable(now time.Time) bool {
	if !l.IsActive {
		return false
	}
	if l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
		return false
	}
	return true
}

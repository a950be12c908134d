package store

import (
	"errors"
	"fmt"

	"shortlink-engine/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ClickStore 拥有 click_events 表，只追加不修改
type ClickStore struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// NewClickStore 创建 ClickStore
func NewClickStore(db *gorm.DB, logger *zap.SugaredLogger) *ClickStore {
	return &ClickStore{db: db, logger: logger.Named("click_store")}
}

// Append 追加一条点击事件
func (s *ClickStore) Append(event *model.ClickEvent) error {
	if err := s.db.Create(event).Error; err != nil {
		s.logger.Errorf("写入点击事件失败: %v", err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CountByLink 统计某链接的事件条数，供报表使用
func (s *ClickStore) CountByLink(linkID uint) (int64, error) {
	var count int64
	err := s.db.Model(&model.ClickEvent{}).Where("link_id = ?", linkID).Count(&count).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

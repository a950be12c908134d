package store

import (
	"errors"
	"fmt"
	"time"

	"shortlink-engine/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PairingStore 拥有一次性配对码和聊天绑定表。
// 配对码遵循与链接相同的过期检查 + 单次消费模式。
type PairingStore struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// NewPairingStore 创建 PairingStore
func NewPairingStore(db *gorm.DB, logger *zap.SugaredLogger) *PairingStore {
	return &PairingStore{db: db, logger: logger.Named("pairing_store")}
}

// Issue 签发一个配对码
func (s *PairingStore) Issue(code string, ownerID uint, ttl time.Duration) (*model.PairingCode, error) {
	pc := model.PairingCode{
		Code:      code,
		OwnerID:   ownerID,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := s.db.Create(&pc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateCode
		}
		s.logger.Errorf("签发配对码失败: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &pc, nil
}

// Consume 消费一个配对码：未过期才命中，命中即删除，保证单次使用。
// 查找和删除在同一事务里完成，两个并发消费者只有一个能成功。
func (s *PairingStore) Consume(code string) (uint, error) {
	var ownerID uint
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var pc model.PairingCode
		if err := tx.Where("code = ?", code).First(&pc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if pc.ExpiresAt.Before(time.Now()) {
			return ErrExpired
		}
		res := tx.Delete(&model.PairingCode{}, pc.ID)
		if res.Error != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Error)
		}
		if res.RowsAffected == 0 {
			// 另一个消费者抢先删掉了
			return ErrNotFound
		}
		ownerID = pc.OwnerID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ownerID, nil
}

// Bind 建立或更新聊天与所有者的绑定。
// 用 chat_id 唯一索引上的 upsert 一步完成，并发绑定不会撞出重键错误。
func (s *PairingStore) Bind(chatID string, ownerID uint) error {
	binding := model.TelegramBinding{ChatID: chatID, OwnerID: ownerID}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "updated_at"}),
	}).Create(&binding).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// OwnerForChat 查询聊天绑定的所有者
func (s *PairingStore) OwnerForChat(chatID string) (uint, error) {
	var binding model.TelegramBinding
	if err := s.db.Where("chat_id = ?", chatID).First(&binding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return binding.OwnerID, nil
}

package store

import (
	"errors"
	"fmt"
	"time"

	"shortlink-engine/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LinkStore 拥有 links 表的全部变更不变量：
// 短码唯一性由唯一索引在插入/更新时原子保证，所有权在这里校验。
type LinkStore struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// NewLinkStore 创建 LinkStore
func NewLinkStore(db *gorm.DB, logger *zap.SugaredLogger) *LinkStore {
	return &LinkStore{db: db, logger: logger.Named("link_store")}
}

// LinkUpdate 部分更新的字段集合，nil 表示不修改
type LinkUpdate struct {
	OriginalURL *string
	ShortCode   *string
	IsActive    *bool
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// Create 插入新链接。唯一性检查与插入是同一条语句，
// 冲突由数据库唯一索引裁决并翻译成 ErrDuplicateCode。
func (s *LinkStore) Create(link *model.Link) error {
	if err := s.db.Create(link).Error; err != nil {
		return s.translate(err)
	}
	return nil
}

// GetByCode 按短码精确查找，大小写敏感，不做任何归一化
func (s *LinkStore) GetByCode(code string) (*model.Link, error) {
	var link model.Link
	if err := s.db.Where("short_code = ?", code).First(&link).Error; err != nil {
		return nil, s.translate(err)
	}
	return &link, nil
}

// GetByID 按主键查找
func (s *LinkStore) GetByID(id uint) (*model.Link, error) {
	var link model.Link
	if err := s.db.First(&link, id).Error; err != nil {
		return nil, s.translate(err)
	}
	return &link, nil
}

// Update 更新链接字段。请求者必须是所有者（elevated 为管理员放行），
// 短码变更时唯一性重新由唯一索引裁决（排除自身）。
func (s *LinkStore) Update(id uint, fields LinkUpdate, requesterID uint, elevated bool) (*model.Link, error) {
	var updated model.Link
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var link model.Link
		if err := tx.First(&link, id).Error; err != nil {
			return s.translate(err)
		}
		if !s.ownedBy(&link, requesterID, elevated) {
			return ErrUnauthorized
		}

		updates := map[string]interface{}{}
		if fields.OriginalURL != nil {
			updates["original_url"] = *fields.OriginalURL
		}
		if fields.ShortCode != nil && *fields.ShortCode != link.ShortCode {
			updates["short_code"] = *fields.ShortCode
		}
		if fields.IsActive != nil {
			updates["is_active"] = *fields.IsActive
		}
		if fields.ClearExpiry {
			updates["expires_at"] = nil
		} else if fields.ExpiresAt != nil {
			updates["expires_at"] = *fields.ExpiresAt
		}
		if len(updates) == 0 {
			updated = link
			return nil
		}

		if err := tx.Model(&link).Updates(updates).Error; err != nil {
			return s.translate(err)
		}
		updated = link
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete 删除链接，所有权规则同 Update
func (s *LinkStore) Delete(id uint, requesterID uint, elevated bool) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var link model.Link
		if err := tx.First(&link, id).Error; err != nil {
			return s.translate(err)
		}
		if !s.ownedBy(&link, requesterID, elevated) {
			return ErrUnauthorized
		}
		if err := tx.Delete(&link).Error; err != nil {
			return s.translate(err)
		}
		return nil
	})
}

// IncrementClicks 点击计数 +1。单条 UPDATE 表达式，天然并发安全，
// 计数只增不减；调用方负责不阻塞解析路径。
func (s *LinkStore) IncrementClicks(id uint) error {
	err := s.db.Model(&model.Link{}).Where("id = ?", id).
		UpdateColumn("click_count", gorm.Expr("click_count + 1")).Error
	if err != nil {
		return s.translate(err)
	}
	return nil
}

// ListByOwner 列出某所有者的全部链接，按创建时间倒序
func (s *LinkStore) ListByOwner(ownerID uint) ([]model.Link, error) {
	var links []model.Link
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&links).Error; err != nil {
		return nil, s.translate(err)
	}
	return links, nil
}

// ListAll 列出全部链接（管理员视角），按创建时间倒序
func (s *LinkStore) ListAll() ([]model.Link, error) {
	var links []model.Link
	if err := s.db.Order("created_at DESC").Find(&links).Error; err != nil {
		return nil, s.translate(err)
	}
	return links, nil
}

// OwnerStats 聚合统计结果
type OwnerStats struct {
	TotalLinks    int64 `json:"total_links"`
	TotalClicks   int64 `json:"total_clicks"`
	ActiveLinks   int64 `json:"active_links"`
	ExpiringLinks int64 `json:"expiring_links"`
}

// Stats 统计某所有者（ownerID 为 nil 时统计全局）的链接数据，
// 只读报表操作，不要求与缓存实时一致。
func (s *LinkStore) Stats(ownerID *uint, expiringWindow time.Duration) (*OwnerStats, error) {
	scoped := func() *gorm.DB {
		q := s.db.Model(&model.Link{})
		if ownerID != nil {
			q = q.Where("owner_id = ?", *ownerID)
		}
		return q
	}

	var stats OwnerStats
	if err := scoped().Count(&stats.TotalLinks).Error; err != nil {
		return nil, s.translate(err)
	}
	if err := scoped().Select("COALESCE(SUM(click_count), 0)").Scan(&stats.TotalClicks).Error; err != nil {
		return nil, s.translate(err)
	}
	now := time.Now()
	if err := scoped().Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&stats.ActiveLinks).Error; err != nil {
		return nil, s.translate(err)
	}
	if err := scoped().Where("expires_at > ? AND expires_at < ?", now, now.Add(expiringWindow)).
		Count(&stats.ExpiringLinks).Error; err != nil {
		return nil, s.translate(err)
	}
	return &stats, nil
}

// ownedBy 所有权判定：管理员放行；匿名链接只有管理员可以改
func (s *LinkStore) ownedBy(link *model.Link, requesterID uint, elevated bool) bool {
	if elevated {
		return true
	}
	return link.OwnerID != nil && *link.OwnerID == requesterID
}

// translate 把 gorm 错误翻译成存储层口径，
// 其余错误记日志并归为 ErrStoreUnavailable，细节不外泄
func (s *LinkStore) translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateCode
	default:
		s.logger.Errorf("数据库操作失败: %v", err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

package service

import (
	"time"

	"shortlink-engine/internal/model"
	"shortlink-engine/internal/shortcode"
	"shortlink-engine/internal/store"

	"go.uber.org/zap"
)

const pairingCodeLength = 8

// PairingService 一次性配对码流程：签发 -> 聊天端消费 -> 绑定所有者。
// 配对码与链接遵循同一套过期检查 + 单次消费约定。
type PairingService struct {
	pairing *store.PairingStore
	ttl     time.Duration
	logger  *zap.SugaredLogger
}

// NewPairingService 创建配对服务
func NewPairingService(pairing *store.PairingStore, ttl time.Duration, logger *zap.SugaredLogger) *PairingService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PairingService{pairing: pairing, ttl: ttl, logger: logger.Named("pairing_service")}
}

// IssueCode 为所有者签发一个配对码，碰撞时重试
func (s *PairingService) IssueCode(ownerID uint) (*model.PairingCode, error) {
	for i := 0; i < generateAttempts; i++ {
		code, err := shortcode.NewCode(pairingCodeLength)
		if err != nil {
			return nil, err
		}
		pc, err := s.pairing.Issue(code, ownerID, s.ttl)
		if err == nil {
			return pc, nil
		}
		if store.IsDuplicateCode(err) {
			continue
		}
		return nil, err
	}
	return nil, store.ErrDuplicateCode
}

// Pair 消费配对码并把聊天绑定到对应所有者，返回所有者 id
func (s *PairingService) Pair(chatID, code string) (uint, error) {
	ownerID, err := s.pairing.Consume(code)
	if err != nil {
		return 0, err
	}
	if err := s.pairing.Bind(chatID, ownerID); err != nil {
		return 0, err
	}
	s.logger.Infow("聊天绑定成功", "chat_id", chatID, "owner_id", ownerID)
	return ownerID, nil
}

// OwnerForChat 查询聊天当前绑定的所有者
func (s *PairingService) OwnerForChat(chatID string) (uint, error) {
	return s.pairing.OwnerForChat(chatID)
}

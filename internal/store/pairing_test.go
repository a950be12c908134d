package store

import (
	"sync"
	"testing"
	"time"

	"shortlink-engine/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestPairingStore_ConsumeOnce(t *testing.T) {
	s := NewPairingStore(newTestDB(t), testLogger(t))

	_, err := s.Issue("PAIR1234", 42, 10*time.Minute)
	assert.NoError(t, err)

	ownerID, err := s.Consume("PAIR1234")
	assert.NoError(t, err)
	assert.Equal(t, uint(42), ownerID)

	// 单次消费：第二次必须失败
	_, err = s.Consume("PAIR1234")
	assert.True(t, IsNotFound(err))
}

func TestPairingStore_ExpiredCode(t *testing.T) {
	db := newTestDB(t)
	s := NewPairingStore(db, testLogger(t))

	expired := model.PairingCode{Code: "OLDCODE1", OwnerID: 7, ExpiresAt: time.Now().Add(-time.Minute)}
	assert.NoError(t, db.Create(&expired).Error)

	_, err := s.Consume("OLDCODE1")
	assert.True(t, IsExpired(err), "过期配对码不可消费，且与不存在可区分")

	// 过期不等于消费，码还在表里
	var count int64
	db.Model(&model.PairingCode{}).Where("code = ?", "OLDCODE1").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestPairingStore_Bind(t *testing.T) {
	s := NewPairingStore(newTestDB(t), testLogger(t))

	assert.NoError(t, s.Bind("chat-1", 10))
	owner, err := s.OwnerForChat("chat-1")
	assert.NoError(t, err)
	assert.Equal(t, uint(10), owner)

	// 重复绑定覆盖旧的所有者
	assert.NoError(t, s.Bind("chat-1", 11))
	owner, err = s.OwnerForChat("chat-1")
	assert.NoError(t, err)
	assert.Equal(t, uint(11), owner)

	_, err = s.OwnerForChat("chat-unknown")
	assert.True(t, IsNotFound(err))
}

// 并发绑定同一个聊天必须全部成功，最终落在其中一个所有者上
func TestPairingStore_ConcurrentBind(t *testing.T) {
	s := NewPairingStore(newTestDB(t), testLogger(t))

	const n = 8
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(owner uint) {
			defer wg.Done()
			assert.NoError(t, s.Bind("chat-race", owner), "upsert 下并发绑定不应报重键错误")
		}(uint(i))
	}
	wg.Wait()

	owner, err := s.OwnerForChat("chat-race")
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, owner, uint(1))
	assert.LessOrEqual(t, owner, uint(n))
}

package shortcode

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// Charset 生成短码使用的全部字符，URL 安全且大小写敏感
	Charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// CodeLength 自动生成短码的长度
	CodeLength = 6
	// ChannelBufferSize 预生成短码通道的缓冲区大小
	ChannelBufferSize = 1000
	// MinFillThreshold 触发补充的最小水位
	MinFillThreshold = 100
)

// NewCode 无状态地生成一个随机短码。碰撞概率足够低，
// 唯一性最终由创建路径的唯一索引裁决，重试逻辑也在创建路径。
func NewCode(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(Charset))))
		if err != nil {
			return "", err
		}
		b[i] = Charset[num.Int64()]
	}
	return string(b), nil
}

// Generator 在 NewCode 之上维护一个预生成、预查重的短码池，
// 让创建路径在常见情况下拿码零等待。
type Generator struct {
	db        *gorm.DB
	codeChan  chan string
	mu        sync.Mutex
	isFilling bool
	stopChan  chan struct{}
	stopOnce  sync.Once
	logger    *zap.SugaredLogger
}

// NewGenerator 创建短码生成器
func NewGenerator(db *gorm.DB, logger *zap.SugaredLogger) *Generator {
	return &Generator{
		db:       db,
		codeChan: make(chan string, ChannelBufferSize),
		stopChan: make(chan struct{}),
		logger:   logger.Named("shortcode_generator"),
	}
}

// Start 启动后台填充与补水任务
func (g *Generator) Start() {
	g.logger.Info("启动短码生成器...")
	go g.fillChannel()
	go g.monitorAndRefill()
}

// Stop 停止短码生成器
func (g *Generator) Stop() {
	g.stopOnce.Do(func() {
		g.logger.Info("正在停止短码生成器...")
		close(g.stopChan)
	})
}

// GetCode 取一个预查重的短码。池空时回退到即时生成，
// 保证调用方永远不会卡在这里。
func (g *Generator) GetCode() (string, error) {
	select {
	case code := <-g.codeChan:
		return code, nil
	default:
		return NewCode(CodeLength)
	}
}

// monitorAndRefill 监视池水位并按需补充
func (g *Generator) monitorAndRefill() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if len(g.codeChan) < MinFillThreshold {
				g.fillChannel()
			}
		case <-g.stopChan:
			return
		}
	}
}

// fillChannel 后台生成短码填充池，同一时间只允许一个填充任务
func (g *Generator) fillChannel() {
	g.mu.Lock()
	if g.isFilling {
		g.mu.Unlock()
		return
	}
	g.isFilling = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.isFilling = false
		g.mu.Unlock()
	}()

	for len(g.codeChan) < ChannelBufferSize {
		select {
		case <-g.stopChan:
			return
		default:
			code, err := g.generateUniqueCode()
			if err != nil {
				g.logger.Errorf("生成唯一短码时出错: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if code != "" {
				g.codeChan <- code
			}
		}
	}
}

// generateUniqueCode 生成一个当前未被占用的短码，最多尝试 10 次。
// 这里的查重只是降低创建路径的冲突率，不是唯一性的保证。
func (g *Generator) generateUniqueCode() (string, error) {
	for i := 0; i < 10; i++ {
		code, err := NewCode(CodeLength)
		if err != nil {
			return "", err
		}
		if !g.isCodeTaken(code) {
			return code, nil
		}
	}
	g.logger.Warn("连续 10 次生成短码均冲突")
	return "", nil
}

// isCodeTaken 查询短码是否已存在
func (g *Generator) isCodeTaken(code string) bool {
	var count int64
	if err := g.db.Table("links").Where("short_code = ?", code).Count(&count).Error; err != nil {
		g.logger.Errorf("查重失败: %v", err)
		// 查不到就保守地当作已占用，避免把可疑短码放进池子
		return true
	}
	return count > 0
}

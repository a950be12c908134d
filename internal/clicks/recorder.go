package clicks

import (
	"sync"
	"sync/atomic"

	"shortlink-engine/internal/model"
	"shortlink-engine/internal/store"

	"go.uber.org/zap"
)

// Task 一次成功解析对应的记账任务：计数 +1 并追加一条事件
type Task struct {
	LinkID    uint
	Referrer  string
	UserAgent string
	IPAddress string
}

// Recorder 后台点击记录器。Record 永不阻塞：队列满直接丢弃整个任务，
// 重定向是可用性优先的操作，分析数据只能少记、不能多记、更不能拖慢它。
type Recorder struct {
	links   *store.LinkStore
	events  *store.ClickStore
	queue   chan Task
	workers int
	wg      sync.WaitGroup
	mu      sync.RWMutex // 保护 closed 与 close(queue)，入队持读锁，关闭持写锁
	closed  bool
	dropped atomic.Int64
	logger  *zap.SugaredLogger
}

// NewRecorder 创建点击记录器
func NewRecorder(links *store.LinkStore, events *store.ClickStore, queueSize, workers int, logger *zap.SugaredLogger) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 2
	}
	return &Recorder{
		links:   links,
		events:  events,
		queue:   make(chan Task, queueSize),
		workers: workers,
		logger:  logger.Named("click_recorder"),
	}
}

// Start 启动工作协程
func (r *Recorder) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

// Stop 停止接收新任务并等待队列排空
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}

// Record 入队一次点击。队列满或已停止时丢弃并记日志，绝不回压调用方。
// 入队全程持读锁，close(queue) 持写锁，不存在向已关闭队列发送的窗口。
func (r *Recorder) Record(linkID uint, referrer, userAgent, ipAddress string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	task := Task{LinkID: linkID, Referrer: referrer, UserAgent: userAgent, IPAddress: ipAddress}
	select {
	case r.queue <- task:
	default:
		n := r.dropped.Add(1)
		if n%1000 == 1 {
			r.logger.Warnf("点击记录队列已满，累计丢弃 %d 条", n)
		}
	}
}

// Dropped 返回累计丢弃的任务数
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for task := range r.queue {
		// 同一任务里计数和事件各执行一次，失败只记日志不重试，
		// 保证单次解析最多贡献一次计数
		if err := r.links.IncrementClicks(task.LinkID); err != nil {
			r.logger.Errorf("点击计数失败 link_id=%d: %v", task.LinkID, err)
		}
		event := model.ClickEvent{
			LinkID:    task.LinkID,
			Referrer:  task.Referrer,
			UserAgent: task.UserAgent,
			IPAddress: task.IPAddress,
		}
		if err := r.events.Append(&event); err != nil {
			r.logger.Errorf("点击事件落库失败 link_id=%d: %v", task.LinkID, err)
		}
	}
}

// 文件: internal/task/queue.go
package task

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull    = errors.New("task queue is full")
	ErrQueueStopped = errors.New("task queue is stopped")
)

// Task 一个待处理的文件任务
type Task struct {
	ID       string
	UserID   int64
	Enqueued time.Time
	Run      func(ctx context.Context) // 由 worker 调用
	Drop     func()                    // 任务被取消或队列停止时调用，可为 nil
}

// Queue FIFO 任务队列，固定数量 worker 并发执行
type Queue struct {
	queue   *list.List    // 双向链表实现FIFO
	mu      sync.Mutex    // 队列锁
	workers int           // 并发worker数量
	maxSize int           // 队列容量，<=0 不限制
	notify  chan struct{} // 有新任务时唤醒 worker
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
	onDepth func(int)
}

// NewQueue 创建任务队列
func NewQueue(workers, maxSize int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	q := &Queue{
		queue:   list.New(),
		workers: workers,
		maxSize: maxSize,
		notify:  make(chan struct{}, workers),
		stopCh:  make(chan struct{}),
	}
	logrus.Infof("任务队列初始化完成，worker数量: %d，容量: %d", workers, maxSize)
	return q
}

// OnDepthChange 注册队列长度变化回调（指标使用）
func (q *Queue) OnDepthChange(fn func(int)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDepth = fn
}

// Start 启动所有 worker，不阻塞
func (q *Queue) Start(ctx context.Context) {
	green := color.New(color.FgGreen).SprintFunc()
	logrus.Infof("%s 启动 %d 个任务worker", green("👷"), q.workers)

	q.wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go q.worker(ctx, i+1)
	}
}

// worker 循环取任务执行，直到 Stop 或 ctx 结束
func (q *Queue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, ok := q.Dequeue()
		if !ok {
			select {
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}

		startTime := time.Now()
		q.runTask(ctx, task, workerID)
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "worker",
			"took":   time.Since(startTime),
			"data": logrus.Fields{
				"worker":  workerID,
				"task_id": task.ID,
				"user_id": task.UserID,
				"waited":  startTime.Sub(task.Enqueued),
			},
		}).Debug("任务完成")
	}
}

func (q *Queue) runTask(ctx context.Context, task Task, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			red := color.New(color.FgRed).SprintFunc()
			logrus.Errorf("%s Worker-%d 任务崩溃 %s: %v", red("💥"), workerID, task.ID, r)
		}
	}()
	task.Run(ctx)
}

// Enqueue 任务入队，返回排队位置（从1开始）
func (q *Queue) Enqueue(task Task) (int, error) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return 0, ErrQueueStopped
	}
	if q.maxSize > 0 && q.queue.Len() >= q.maxSize {
		q.mu.Unlock()
		return 0, ErrQueueFull
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Enqueued.IsZero() {
		task.Enqueued = time.Now()
	}
	q.queue.PushBack(task)
	position := q.queue.Len()
	q.reportDepth(position)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	logrus.Debugf("任务入队: %s (用户: %d, 位置: %d)", task.ID, task.UserID, position)
	return position, nil
}

// Dequeue 从队列头部取出任务，队列为空时 ok=false
func (q *Queue) Dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	element := q.queue.Front()
	if element == nil {
		return Task{}, false
	}
	q.queue.Remove(element)
	q.reportDepth(q.queue.Len())
	return element.Value.(Task), true
}

// Cancel 移除某个用户所有待处理任务，返回移除数量
func (q *Queue) Cancel(userID int64) int {
	q.mu.Lock()
	var dropped []Task
	for e := q.queue.Front(); e != nil; {
		next := e.Next()
		if t := e.Value.(Task); t.UserID == userID {
			q.queue.Remove(e)
			dropped = append(dropped, t)
		}
		e = next
	}
	q.reportDepth(q.queue.Len())
	q.mu.Unlock()

	for _, t := range dropped {
		if t.Drop != nil {
			t.Drop()
		}
	}
	return len(dropped)
}

// Pending 某个用户的待处理任务数
func (q *Queue) Pending(userID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for e := q.queue.Front(); e != nil; e = e.Next() {
		if e.Value.(Task).UserID == userID {
			n++
		}
	}
	return n
}

// Len 当前队列长度
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Len()
}

// Stop 停止接收新任务，等待运行中的任务完成，丢弃剩余任务
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	var remaining []Task
	for e := q.queue.Front(); e != nil; e = e.Next() {
		remaining = append(remaining, e.Value.(Task))
	}
	q.queue.Init()
	q.reportDepth(0)
	q.mu.Unlock()

	for _, t := range remaining {
		if t.Drop != nil {
			t.Drop()
		}
	}

	red := color.New(color.FgRed).SprintFunc()
	logrus.Infof("%s 任务队列已停止 (丢弃任务: %d)", red("🛑"), len(remaining))
}

// reportDepth 调用方需持有锁
func (q *Queue) reportDepth(n int) {
	if q.onDepth != nil {
		q.onDepth(n)
	}
}

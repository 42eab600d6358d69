package utils

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool closed")

// WorkerPool 通用协程池，用于异步投递事件等不影响请求结果的任务
type WorkerPool struct {
	jobs      chan func()
	workerNum int
	logger    *zap.Logger

	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
}

// NewWorkerPool 创建协程池，需要调用 Start 启动
func NewWorkerPool(workerNum, queueSize int, logger *zap.Logger) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		jobs:      make(chan func(), queueSize),
		workerNum: workerNum,
		logger:    logger,
	}
}

// Start 启动 worker，重复调用无效果
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workerNum; i++ {
			p.wg.Add(1)
			go p.run(i)
		}
		p.logger.Info("worker pool started", zap.Int("workers", p.workerNum))
	})
}

func (p *WorkerPool) run(workerID int) {
	defer p.wg.Done()
	for job := range p.jobs {
		func() {
			// 单个任务 panic 不能拖垮 worker
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("worker job panic", zap.Int("worker", workerID), zap.Any("panic", r))
				}
			}()
			job()
		}()
	}
}

// Submit 提交任务，队列满时阻塞；池已关闭返回 ErrPoolClosed
func (p *WorkerPool) Submit(job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.jobs <- job
	return nil
}

// Stop 停止接收任务并等待队列中的任务执行完
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

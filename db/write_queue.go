package db

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"pdavault/logs"

	"github.com/dgraph-io/badger/v2"
)

// writeMetrics 写入统计（用于观测吞吐与失败）
type writeMetrics struct {
	enqueueSet      uint64
	enqueueDel      uint64
	flushTotal      uint64
	flushedTasks    uint64
	flushErrTotal   uint64
	flushDurationNs uint64
	maxBatch        uint64
}

// WriteStats 写入统计快照
type WriteStats struct {
	EnqueueSet   uint64        `json:"enqueue_set"`
	EnqueueDel   uint64        `json:"enqueue_del"`
	Flushes      uint64        `json:"flushes"`
	FlushedTasks uint64        `json:"flushed_tasks"`
	FlushErrors  uint64        `json:"flush_errors"`
	AvgFlush     time.Duration `json:"avg_flush"`
	MaxBatch     uint64        `json:"max_batch"`
	PendingTasks int           `json:"pending_tasks"`
}

// EnqueueSet 投递写请求，ForceFlush 之前不可见
func (manager *Manager) EnqueueSet(key, value string) {
	manager.pendingMu.Lock()
	manager.pending = append(manager.pending, WriteTask{
		Key:   []byte(key),
		Value: []byte(value),
		Op:    OpSet,
	})
	manager.pendingMu.Unlock()
	atomic.AddUint64(&manager.metrics.enqueueSet, 1)
}

// EnqueueDel 投递删除请求
func (manager *Manager) EnqueueDel(key string) {
	manager.pendingMu.Lock()
	manager.pending = append(manager.pending, WriteTask{
		Key: []byte(key),
		Op:  OpDelete,
	})
	manager.pendingMu.Unlock()
	atomic.AddUint64(&manager.metrics.enqueueDel, 1)
}

// ForceFlush 把已入队的写请求放进同一个事务提交：要么全部可见，要么全部不可见
func (manager *Manager) ForceFlush() error {
	manager.pendingMu.Lock()
	batch := manager.pending
	manager.pending = nil
	manager.pendingMu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	db, err := manager.handle()
	if err != nil {
		return err
	}

	start := time.Now()
	err = manager.flushBatch(db, batch)
	atomic.AddUint64(&manager.metrics.flushTotal, 1)
	atomic.AddUint64(&manager.metrics.flushDurationNs, uint64(time.Since(start)))
	if err != nil {
		atomic.AddUint64(&manager.metrics.flushErrTotal, 1)
		logs.Error("[DB] flush %d tasks failed: %v", len(batch), err)
		return err
	}
	atomic.AddUint64(&manager.metrics.flushedTasks, uint64(len(batch)))
	manager.observeBatch(len(batch))
	return nil
}

func (manager *Manager) flushBatch(db *badger.DB, batch []WriteTask) error {
	err := db.Update(func(txn *badger.Txn) error {
		for _, t := range batch {
			var err error
			switch t.Op {
			case OpDelete:
				err = txn.Delete(t.Key)
			default:
				err = txn.Set(t.Key, t.Value)
			}
			if err != nil {
				return fmt.Errorf("%s %q: %w", t.Op, t.Key, err)
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		// 单笔交易的写集不会有这么大，出现就说明调用方在一次提交里塞了太多东西
		return fmt.Errorf("write batch of %d tasks exceeds badger txn limit: %w", len(batch), err)
	}
	return err
}

func (manager *Manager) observeBatch(n int) {
	for {
		old := atomic.LoadUint64(&manager.metrics.maxBatch)
		if uint64(n) <= old {
			return
		}
		if atomic.CompareAndSwapUint64(&manager.metrics.maxBatch, old, uint64(n)) {
			return
		}
	}
}

// WriteStats 当前写入统计
func (manager *Manager) WriteStats() WriteStats {
	m := &manager.metrics
	flushes := atomic.LoadUint64(&m.flushTotal)
	var avg time.Duration
	if flushes > 0 {
		avg = time.Duration(atomic.LoadUint64(&m.flushDurationNs) / flushes)
	}
	manager.pendingMu.Lock()
	pending := len(manager.pending)
	manager.pendingMu.Unlock()

	return WriteStats{
		EnqueueSet:   atomic.LoadUint64(&m.enqueueSet),
		EnqueueDel:   atomic.LoadUint64(&m.enqueueDel),
		Flushes:      flushes,
		FlushedTasks: atomic.LoadUint64(&m.flushedTasks),
		FlushErrors:  atomic.LoadUint64(&m.flushErrTotal),
		AvgFlush:     avg,
		MaxBatch:     atomic.LoadUint64(&m.maxBatch),
		PendingTasks: pending,
	}
}

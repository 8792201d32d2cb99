package db

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"pdavault/config"
	"pdavault/logs"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
)

// ErrClosed 数据库已关闭
var ErrClosed = errors.New("database is not initialized or closed")

// Manager 封装 BadgerDB 的管理器，实现 vm.DBManager
type Manager struct {
	Db  *badger.DB
	mu  sync.RWMutex
	cfg *config.Config

	// 待提交的写请求，ForceFlush 时在一个事务里整体落盘
	pendingMu sync.Mutex
	pending   []WriteTask

	metrics writeMetrics
}

// NewManager 按配置打开数据库；InMemory 时忽略 Path
func NewManager(cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	dbc := cfg.Database

	var opts badger.Options
	if dbc.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dbc.Path)
		// 使用 FileIO 模式减少 mmap 内存占用
		opts.TableLoadingMode = options.FileIO
		opts.ValueLogLoadingMode = options.FileIO
		opts.SyncWrites = dbc.SyncWrites
		if dbc.ValueLogFileSize > 0 {
			opts.ValueLogFileSize = dbc.ValueLogFileSize
		}
		// badger v2 不自动创建父目录，需要手动创建
		if err := os.MkdirAll(dbc.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	logs.Info("[DB] opened badger (in_memory=%v path=%q)", dbc.InMemory, dbc.Path)

	return &Manager{
		Db:  db,
		cfg: cfg,
	}, nil
}

func (manager *Manager) handle() (*badger.DB, error) {
	manager.mu.RLock()
	db := manager.Db
	manager.mu.RUnlock()
	if db == nil {
		return nil, ErrClosed
	}
	return db, nil
}

// Get 实现 vm.DBManager 接口，key 不存在时返回 (nil, nil)
func (manager *Manager) Get(key string) ([]byte, error) {
	db, err := manager.handle()
	if err != nil {
		return nil, err
	}

	var value []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Scan scans all keys with the given prefix and returns a map of key-value pairs
func (manager *Manager) Scan(prefix string) (map[string][]byte, error) {
	return manager.ScanWithLimit(prefix, 0)
}

// ScanWithLimit limit<=0 表示不限制
func (manager *Manager) ScanWithLimit(prefix string, limit int) (map[string][]byte, error) {
	db, err := manager.handle()
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte)

	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if limit > 0 && len(result) >= limit {
				break
			}
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[string(k)] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close 先把还没提交的写请求落盘，再关闭数据库
func (manager *Manager) Close() {
	if err := manager.ForceFlush(); err != nil && !errors.Is(err, ErrClosed) {
		logs.Error("[db.Close] force flush failed: %v", err)
	}

	manager.mu.Lock()
	defer manager.mu.Unlock()
	if manager.Db != nil {
		_ = manager.Db.Close()
		manager.Db = nil
	}
}

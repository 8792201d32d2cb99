// config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"pdavault/pda"
)

// DefaultProgramID 金库程序 ID，进程启动时注入，所有地址派生都以它为准
const DefaultProgramID = "A83TaXZhoY8V7sV71juincig8YXYcYngitWoP9TFXJyE"

// Config 主配置结构
type Config struct {
	Program  ProgramConfig
	Rent     RentConfig
	Database DatabaseConfig
	Server   ServerConfig
	Executor ExecutorConfig
	Log      LogConfig
	Genesis  []GenesisAccount
}

// ProgramConfig 程序身份
type ProgramConfig struct {
	ID string // base58
}

// RentConfig 免租金门槛参数
type RentConfig struct {
	LamportsPerByteYear    uint64  // 3480
	ExemptionThreshold     float64 // 2.0（年）
	AccountStorageOverhead uint64  // 128（每个账户的固定开销字节）
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path             string // "./data"
	InMemory         bool   // 测试/演示用
	ValueLogFileSize int64  // 64 << 20 (64MB)
	SyncWrites       bool   // true
}

// ServerConfig HTTP/3服务器配置
type ServerConfig struct {
	Listen   string // ":6000"
	CertFile string // 为空时自动生成自签名证书
	KeyFile  string

	// QUIC配置
	QUICKeepAlivePeriod time.Duration // 10 * time.Second
	QUICMaxIdleTimeout  time.Duration // 5 * time.Minute
	QUICAllow0RTT       bool          // true

	// HTTP配置
	HTTPTimeout        time.Duration // 30 * time.Second
	MaxRequestBodySize int64         // 1 << 20 (1MB)

	// 按 IP 限流，RateLimit<=0 表示不限
	RateLimit       int           // 每个窗口允许的请求数
	RateLimitWindow time.Duration // time.Second
}

// ExecutorConfig 执行器配置
type ExecutorConfig struct {
	Workers          int // 批量执行时的并发分片数
	ReceiptCacheSize int // 回执 LRU 容量
	DeriveCacheSize  int // 查询路径上的 PDA 派生缓存容量
}

// LogConfig 日志配置
type LogConfig struct {
	Level string // trace|debug|verbose|info|warn|error
}

// GenesisAccount 创世资金（仅在空库第一次启动时写入）
type GenesisAccount struct {
	Address  string
	Lamports uint64
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Program: ProgramConfig{
			ID: DefaultProgramID,
		},
		Rent: RentConfig{
			LamportsPerByteYear:    3480,
			ExemptionThreshold:     2.0,
			AccountStorageOverhead: 128,
		},
		Database: DatabaseConfig{
			Path:             "./data",
			ValueLogFileSize: 64 << 20,
			SyncWrites:       true,
		},
		Server: ServerConfig{
			Listen:              ":6000",
			QUICKeepAlivePeriod: 10 * time.Second,
			QUICMaxIdleTimeout:  5 * time.Minute,
			QUICAllow0RTT:       true,
			HTTPTimeout:         30 * time.Second,
			MaxRequestBodySize:  1 << 20,
			RateLimit:           1000,
			RateLimitWindow:     time.Second,
		},
		Executor: ExecutorConfig{
			Workers:          8,
			ReceiptCacheSize: 10000,
			DeriveCacheSize:  4096,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile 从 JSON 文件加载配置，文件里没写的字段保留默认值
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProgramAddress 解析程序 ID
func (c *Config) ProgramAddress() (pda.Address, error) {
	return pda.ParseAddress(c.Program.ID)
}

// Validate 验证配置合法性
func (c *Config) Validate() error {
	if _, err := c.ProgramAddress(); err != nil {
		return fmt.Errorf("Program.ID: %w", err)
	}
	if c.Rent.LamportsPerByteYear == 0 {
		return fmt.Errorf("Rent.LamportsPerByteYear must be positive")
	}
	if c.Rent.ExemptionThreshold <= 0 {
		return fmt.Errorf("Rent.ExemptionThreshold must be positive")
	}
	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("Database.Path is required unless InMemory")
	}
	if c.Executor.Workers <= 0 {
		return fmt.Errorf("Executor.Workers must be positive")
	}
	for i, g := range c.Genesis {
		if _, err := pda.ParseAddress(g.Address); err != nil {
			return fmt.Errorf("Genesis[%d].Address: %w", i, err)
		}
	}
	return nil
}

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pdavault/config"
	"pdavault/crt"
	"pdavault/db"
	"pdavault/handlers"
	"pdavault/logs"
	"pdavault/middleware"
	"pdavault/vm"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// NodeInstance 一个金库节点：数据库、执行器、HTTP/3 接口
type NodeInstance struct {
	Config         *config.Config
	DBManager      *db.Manager
	Executor       *vm.Executor
	HandlerManager *handlers.HandlerManager
	Limiter        *middleware.IPLimiter
	Cancel         context.CancelFunc

	// serve 和 shutdown 在不同 goroutine，服务器字段由 mu 保护
	mu          sync.Mutex
	closed      bool
	HTTP3Server *http3.Server // QUIC HTTP/3 server
	Server      *http.Server  // TCP TLS server，方便 curl 之类的工具
	listener    *quic.Listener
}

// 初始化节点：数据库 -> 执行器 -> 创世资金 -> 路由
func initializeNode(cfg *config.Config) (*NodeInstance, error) {
	node := &NodeInstance{Config: cfg}

	dbManager, err := db.NewManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	node.DBManager = dbManager

	executor, err := vm.NewExecutor(dbManager, nil, cfg)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to init executor: %w", err)
	}
	node.Executor = executor

	applied, err := executor.ApplyGenesis(cfg.Genesis)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply genesis: %w", err)
	}
	if applied {
		logs.Info("Genesis applied: %d funded accounts", len(cfg.Genesis))
	}

	logs.SetNodeTag(executor.ProgramID().String())
	node.HandlerManager = handlers.NewHandlerManager(executor, dbManager, cfg.Server.MaxRequestBodySize)
	node.Limiter = middleware.NewIPLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitWindow)
	return node, nil
}

func (node *NodeInstance) handler() http.Handler {
	mux := http.NewServeMux()
	node.HandlerManager.RegisterRoutes(mux)
	var h http.Handler = node.Limiter.RateLimit(mux)
	if t := node.Config.Server.HTTPTimeout; t > 0 {
		h = http.TimeoutHandler(h, t, "request timeout")
	}
	return h
}

func (node *NodeInstance) tlsConfig() (*tls.Config, error) {
	srv := node.Config.Server
	certFile, keyFile := srv.CertFile, srv.KeyFile
	if certFile == "" || keyFile == "" {
		base := node.Config.Database.Path
		if base == "" || node.Config.Database.InMemory {
			base = "."
		}
		certFile = filepath.Join(base, "tls", "server.crt")
		keyFile = filepath.Join(base, "tls", "server.key")
	}
	cert, err := crt.LoadOrGenerate(certFile, keyFile, node.Executor.ProgramID())
	if err != nil {
		return nil, err
	}
	if fp, err := crt.CertFingerprint(cert); err == nil {
		node.HandlerManager.SetTLSFingerprint(fp)
	} else {
		logs.Warn("[TLS] fingerprint: %v", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		MaxVersion:   tls.VersionTLS13,
		NextProtos:   []string{"h3", "http/1.1"},
	}, nil
}

// 启动 HTTP/3 服务器（阻塞），同端口再起一个 TCP TLS 服务器
func (node *NodeInstance) serve(ctx context.Context) error {
	tlsConfig, err := node.tlsConfig()
	if err != nil {
		return err
	}
	srv := node.Config.Server
	handler := node.handler()

	quicConfig := &quic.Config{
		KeepAlivePeriod: srv.QUICKeepAlivePeriod,
		MaxIdleTimeout:  srv.QUICMaxIdleTimeout,
		Allow0RTT:       srv.QUICAllow0RTT,
	}
	server := &http3.Server{
		Addr:       srv.Listen,
		Handler:    handler,
		TLSConfig:  tlsConfig,
		QUICConfig: quicConfig,
	}
	tcpServer := &http.Server{
		Addr:      srv.Listen,
		Handler:   handler,
		TLSConfig: tlsConfig,
	}

	node.mu.Lock()
	if node.closed {
		node.mu.Unlock()
		return nil
	}
	listener, err := quic.ListenAddr(srv.Listen, tlsConfig, quicConfig)
	if err != nil {
		node.mu.Unlock()
		return fmt.Errorf("failed to create QUIC listener: %w", err)
	}
	node.HTTP3Server = server
	node.Server = tcpServer
	node.listener = listener
	node.mu.Unlock()

	go func() {
		if err := tcpServer.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Error("TCP TLS Server error: %v", err)
		}
	}()

	node.Limiter.StartCleanup(ctx, 2*time.Minute)
	logs.Info("Vault node listening on %s (program %s)", srv.Listen, node.Executor.ProgramID())

	if err := server.ServeListener(listener); err != nil {
		if isServerClosedErr(err) {
			return nil
		}
		logs.Error("HTTP/3 Server error: %v", err)
		return err
	}
	return nil
}

// shutdown 先停接口再关数据库，保证写队列最后一次刷盘
func (node *NodeInstance) shutdown() {
	if node.Cancel != nil {
		node.Cancel()
	}
	node.mu.Lock()
	node.closed = true
	h3, tcp, ln := node.HTTP3Server, node.Server, node.listener
	node.mu.Unlock()

	if h3 != nil {
		if err := h3.Close(); err != nil && !isServerClosedErr(err) {
			logs.Warn("failed to close HTTP/3 server: %v", err)
		}
	}
	if ln != nil {
		if err := ln.Close(); err != nil && !isServerClosedErr(err) {
			logs.Warn("failed to close QUIC listener: %v", err)
		}
	}
	if tcp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tcp.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Warn("failed to shutdown TCP server: %v", err)
		}
		cancel()
	}
	if node.DBManager != nil {
		node.DBManager.Close()
	}
	st := node.Executor.Stats()
	logs.Info("Node stopped. succeeded=%d failed=%d", st.Succeeded, st.Failed)
}

func isServerClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, quic.ErrServerClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "server closed") ||
		strings.Contains(msg, "use of closed network connection")
}

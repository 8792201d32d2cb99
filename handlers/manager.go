package handlers

import (
	"encoding/json"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"pdavault/db"
	"pdavault/logs"
	"pdavault/stats"
	"pdavault/vm"

	"github.com/shopspring/decimal"
)

// lamportsDecimals 1 SOL = 10^9 lamports
const lamportsDecimals = 9

// HandlerManager 管理所有HTTP处理器及其依赖
type HandlerManager struct {
	executor  *vm.Executor
	dbManager *db.Manager // 可以为 nil（测试时只用执行器）
	maxBody   int64

	// 统计相关字段
	Stats *stats.Stats

	tlsFingerprint atomic.Value // string
}

// NewHandlerManager 创建新的处理器管理器
func NewHandlerManager(executor *vm.Executor, dbMgr *db.Manager, maxBody int64) *HandlerManager {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &HandlerManager{
		executor:  executor,
		dbManager: dbMgr,
		maxBody:   maxBody,
		Stats:     stats.NewStats(),
	}
}

// SetTLSFingerprint 记录节点证书指纹，在 /status 中展示
func (hm *HandlerManager) SetTLSFingerprint(fp string) {
	hm.tlsFingerprint.Store(fp)
}

// RegisterRoutes 注册所有路由
func (hm *HandlerManager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/tx", hm.instrument("/tx", hm.HandleTx))
	mux.HandleFunc("/tx/batch", hm.instrument("/tx/batch", hm.HandleTxBatch))
	mux.HandleFunc("/tx/status", hm.instrument("/tx/status", hm.HandleTxStatus))
	mux.HandleFunc("/owner/txs", hm.instrument("/owner/txs", hm.HandleOwnerTxs))
	mux.HandleFunc("/vault", hm.instrument("/vault", hm.HandleGetVault))
	mux.HandleFunc("/account", hm.instrument("/account", hm.HandleGetAccount))
	mux.HandleFunc("/receipt", hm.instrument("/receipt", hm.HandleGetReceipt))
	mux.HandleFunc("/status", hm.instrument("/status", hm.HandleStatus))
}

// statusRecorder 记住写出的状态码，用于统计失败次数
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (hm *HandlerManager) instrument(name string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		hm.Stats.RecordAPICall(name, time.Since(start), rec.status >= 400)
	}
}

// ========== 辅助方法 ==========

type errorResponse struct {
	Error string `json:"error"`
	Code  uint32 `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Warn("[HTTP] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if ve, ok := vm.AsVaultError(err); ok {
		resp.Code = uint32(ve.Code)
	}
	writeJSON(w, status, resp)
}

// lamportsToSOL 只用于展示
func lamportsToSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -lamportsDecimals).String()
}

package vm

import "errors"

// ========== 错误定义 ==========

var (
	ErrNilTx           = errors.New("nil transaction")
	ErrInvalidSnapshot = errors.New("invalid snapshot index")
	ErrDuplicateTx     = errors.New("duplicate transaction")
	ErrUnknownHandler  = errors.New("no handler for tx kind")
	// ErrProgramIDMismatch 数据库已经绑定了另一个程序 ID
	ErrProgramIDMismatch = errors.New("program id mismatch")
)

// 回执状态
const (
	StatusSucceed = "SUCCEED"
	StatusFailed  = "FAILED"
)

// ========== 基础类型定义 ==========

// “要怎么改状态”的清单
type WriteOp struct {
	Key      string // 完整的 key（包括命名空间前缀）
	Value    []byte // 序列化后的值
	Del      bool   // true表示删除操作
	Category string // 数据分类：account, receipt, tx, meta
}

// 记录执行结果
type Receipt struct {
	TxID         string   `json:"tx_id"`
	Kind         string   `json:"kind"`
	Owner        string   `json:"owner"`
	Status       string   `json:"status"` // "SUCCEED" or "FAILED"
	ErrorCode    uint32   `json:"error_code,omitempty"`
	Error        string   `json:"error,omitempty"`
	Timestamp    int64    `json:"timestamp"`
	Logs         []string `json:"logs,omitempty"`
	WriteCount   int      `json:"write_count"`
	VaultBalance uint64   `json:"vault_balance"` // 执行后金库余额
}

// failedReceipt 把错误填进回执，VaultError 会带上错误码
func failedReceipt(rc *Receipt, err error) *Receipt {
	rc.Status = StatusFailed
	rc.Error = err.Error()
	if ve, ok := AsVaultError(err); ok {
		rc.ErrorCode = uint32(ve.Code)
	}
	return rc
}

package vm

import (
	"pdavault/pda"
	"pdavault/types"
)

// ========== 核心接口定义 ==========

// StateView 状态视图接口
type StateView interface {
	//读/写/删某个 key 的状态；写入只写进这个视图，不直接落到底层 DB。
	Get(key string) ([]byte, bool, error)
	Set(key string, val []byte)
	Del(key string)
	//做一个快照点、必要时回滚到该点，实现失败回滚。
	Snapshot() int
	Revert(snap int) error
	//把执行期间累积的写集导出来，给后续“真正落库”用。
	Diff() []WriteOp
	// 扫描指定前缀下的所有键值对（叠加 overlay）
	Scan(prefix string) (map[string][]byte, error)
}

// TxHandler 交易处理器接口
type TxHandler interface {
	//标识这个 Handler 处理哪种交易类型（比如 "vault_deposit"）。
	Kind() string
	//在给定 StateView 上执行，返回写集与回执。返回 error 时写集作废。
	DryRun(tx *types.VaultTx, sv StateView) ([]WriteOp, *Receipt, error)
}

// Runtime 账本运行时提供给金库程序的能力（地址派生、签名、转账、租金、账户分配）。
// 一个 Runtime 只服务一笔交易。
type Runtime interface {
	ProgramID() pda.Address

	// 地址派生：Find 搜索 bump，Create 用已知 bump 复现
	FindProgramAddress(seeds [][]byte) (pda.Address, uint8, error)
	CreateProgramAddress(seeds [][]byte) (pda.Address, error)

	// IsSigner 该地址是否对当前交易签了名
	IsSigner(addr pda.Address) bool

	// MinimumBalance 给定数据长度的免租金门槛
	MinimumBalance(space uint64) uint64

	Account(addr pda.Address) (*Account, bool, error)
	Balance(addr pda.Address) (uint64, error)

	// Transfer from 必须是签名者
	Transfer(from, to pda.Address, amount uint64) error
	// TransferSigned from 是 PDA，由 signer 携带的种子授权
	TransferSigned(from, to pda.Address, amount uint64, signer SigningCapability) error

	// CreateAccount payer 出资恰好 MinimumBalance(space)，addr 由 signer 授权
	CreateAccount(payer, addr pda.Address, space uint64, owner pda.Address, signer SigningCapability) error
	// WriteData 只能写本程序拥有的账户，长度不能变
	WriteData(addr pda.Address, data []byte) error
	// CloseAccount 把剩余 lamports 转给 beneficiary 并删除记录
	CloseAccount(addr, beneficiary pda.Address) error

	// 程序日志，进回执
	Log(format string, args ...interface{})
	Logs() []string
}

// DBManager 数据库管理器接口
type DBManager interface {
	EnqueueSet(key, value string)
	EnqueueDel(key string)
	ForceFlush() error
	Get(key string) ([]byte, error)
	// 前缀扫描，返回所有以 prefix 开头的键值对
	Scan(prefix string) (map[string][]byte, error)
}

// （读穿函数）
// 当 StateView.Get 本地 overlay 没命中时，定义“如何从底层存储读真实值”
type ReadThroughFn func(key string) ([]byte, error)

// ScanFn 用于 StateView 从底层存储做前缀扫描
type ScanFn func(prefix string) (map[string][]byte, error)

// KindFn 提取交易种类，VM 用它路由到对应的 TxHandler
type KindFn func(tx *types.VaultTx) (string, error)

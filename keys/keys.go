// keys/keys.go
// 统一的 Key 定义包，供 VM 和 DB 模块共同使用
package keys

import (
	"fmt"
	"strings"
)

// ===================== 版本控制 =====================
// 设置全局 Key 版本前缀（例如 "v1" → 产出 "v1_<key>"）。
const KeyVersion = "v1"

// withVer 把版本号拼到最前面（保持下划线风格：v1_<...>）
func withVer(s string) string {
	if KeyVersion == "" {
		return s
	}
	return KeyVersion + "_" + s
}

// StripVersion 把带版本的键去掉版本前缀
func StripVersion(prefixed string) string {
	if KeyVersion == "" {
		return prefixed
	}
	return strings.TrimPrefix(prefixed, KeyVersion+"_")
}

func padUint(v uint64) string {
	return fmt.Sprintf("%020d", v)
}

// ===================== 账户相关 =====================

// KeyAccount 账户记录（lamports / owner program / data）
// 例：v1_account_<base58 address>
func KeyAccount(addr string) string {
	return withVer("account_" + addr)
}

// KeyAccountPrefix 所有账户记录的前缀
func KeyAccountPrefix() string {
	return withVer("account_")
}

// ===================== 交易相关 =====================

// KeyTxRaw 交易原文（不可变）
// 例：v1_txraw_<txID>
func KeyTxRaw(txID string) string {
	return withVer("txraw_" + txID)
}

// KeyReceipt 交易回执（成功和失败都会记录）
// 例：v1_receipt_<txID>
func KeyReceipt(txID string) string {
	return withVer("receipt_" + txID)
}

// KeyOwnerTx owner 维度的交易索引，value 为 txID
// 例：v1_owner_tx_<owner>_<seq>
func KeyOwnerTx(owner string, seq uint64) string {
	return withVer(fmt.Sprintf("owner_tx_%s_%s", owner, padUint(seq)))
}

// KeyOwnerTxPrefix 某个 owner 的交易索引前缀
func KeyOwnerTxPrefix(owner string) string {
	return withVer(fmt.Sprintf("owner_tx_%s_", owner))
}

// KeyOwnerTxSeq owner 交易索引的下一个序号
func KeyOwnerTxSeq(owner string) string {
	return withVer("owner_tx_seq_" + owner)
}

// ===================== 节点元数据 =====================

// KeyGenesisApplied 创世资金是否已经写入
func KeyGenesisApplied() string {
	return withVer("meta_genesis_applied")
}

// KeyProgramID 节点第一次启动时绑定的程序 ID，之后不允许更换
func KeyProgramID() string {
	return withVer("meta_program_id")
}

// keys/category.go
// Key 分类模块：区分可变账本状态和不可变流水
package keys

import "strings"

// KeyCategory 定义 Key 的存储归属
type KeyCategory int

const (
	CategoryKV    KeyCategory = iota // 不可变流水/索引
	CategoryState                    // 可变状态
)

// 可变状态数据前缀
var statePrefixes = []string{
	"v1_account_",      // 账户（包括金库 PDA 和状态记录）
	"v1_owner_tx_seq_", // owner 索引序号
	"v1_meta_",         // 节点元数据
}

// CategorizeKey 判断 key 属于哪一类
func CategorizeKey(key string) KeyCategory {
	for _, prefix := range statePrefixes {
		if strings.HasPrefix(key, prefix) {
			return CategoryState
		}
	}
	return CategoryKV
}

// IsStatefulKey 判断 key 是否属于可变状态
func IsStatefulKey(key string) bool {
	return CategorizeKey(key) == CategoryState
}

// IsAccountKey 判断是否为账户数据
func IsAccountKey(key string) bool {
	return strings.HasPrefix(key, "v1_account_")
}

// IsTxKey 判断是否为交易流水数据
func IsTxKey(key string) bool {
	return strings.HasPrefix(key, "v1_txraw_") ||
		strings.HasPrefix(key, "v1_receipt_") ||
		(strings.HasPrefix(key, "v1_owner_tx_") && !strings.HasPrefix(key, "v1_owner_tx_seq_"))
}

// CategoryName 写集 WriteOp.Category 使用的名字
func CategoryName(key string) string {
	switch {
	case IsAccountKey(key):
		return "account"
	case strings.HasPrefix(key, "v1_receipt_"):
		return "receipt"
	case IsTxKey(key):
		return "tx"
	case strings.HasPrefix(key, "v1_meta_"), strings.HasPrefix(key, "v1_owner_tx_seq_"):
		return "meta"
	default:
		return "other"
	}
}

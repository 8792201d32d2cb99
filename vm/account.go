package vm

import (
	"errors"
	"fmt"

	"pdavault/keys"
	"pdavault/pda"

	"google.golang.org/protobuf/encoding/protowire"
)

// Account 账本上的一条账户记录
type Account struct {
	Lamports uint64
	Owner    pda.Address // 拥有该账户的程序；普通钱包和金库 PDA 都属于系统程序
	Data     []byte
}

// 字段编号（protobuf wire 格式）
const (
	accountFieldLamports protowire.Number = 1
	accountFieldOwner    protowire.Number = 2
	accountFieldData     protowire.Number = 3
)

var ErrCorruptAccount = errors.New("corrupt account record")

// IsEmpty 没钱也没数据的账户视为不存在
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// IsSystemOwned 是否归系统程序所有
func (a *Account) IsSystemOwned() bool {
	return a.Owner == pda.SystemProgramID
}

// MarshalAccount 编码为 protobuf wire 格式
func MarshalAccount(a *Account) []byte {
	b := make([]byte, 0, 48+len(a.Data))
	if a.Lamports != 0 {
		b = protowire.AppendTag(b, accountFieldLamports, protowire.VarintType)
		b = protowire.AppendVarint(b, a.Lamports)
	}
	b = protowire.AppendTag(b, accountFieldOwner, protowire.BytesType)
	b = protowire.AppendBytes(b, a.Owner[:])
	if len(a.Data) > 0 {
		b = protowire.AppendTag(b, accountFieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, a.Data)
	}
	return b
}

// UnmarshalAccount 解码账户记录，未知字段跳过
func UnmarshalAccount(b []byte) (*Account, error) {
	acc := &Account{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCorruptAccount, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == accountFieldLamports && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: lamports: %v", ErrCorruptAccount, protowire.ParseError(m))
			}
			acc.Lamports = v
			n = m
		case num == accountFieldOwner && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: owner: %v", ErrCorruptAccount, protowire.ParseError(m))
			}
			owner, err := pda.AddressFromBytes(v)
			if err != nil {
				return nil, fmt.Errorf("%w: owner: %v", ErrCorruptAccount, err)
			}
			acc.Owner = owner
			n = m
		case num == accountFieldData && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: data: %v", ErrCorruptAccount, protowire.ParseError(m))
			}
			acc.Data = append([]byte(nil), v...)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrCorruptAccount, num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return acc, nil
}

// ========== StateView 上的账户读写 ==========

// GetAccount 读取账户，不存在时返回 (nil, false, nil)
func GetAccount(sv StateView, addr pda.Address) (*Account, bool, error) {
	data, exists, err := sv.Get(keys.KeyAccount(addr.String()))
	if err != nil {
		return nil, false, err
	}
	if !exists || len(data) == 0 {
		return nil, false, nil
	}
	acc, err := UnmarshalAccount(data)
	if err != nil {
		return nil, false, fmt.Errorf("account %s: %w", addr, err)
	}
	return acc, true, nil
}

// SetAccount 写回账户；空账户直接删除记录
func SetAccount(sv StateView, addr pda.Address, acc *Account) {
	key := keys.KeyAccount(addr.String())
	if acc == nil || acc.IsEmpty() {
		sv.Del(key)
		return
	}
	sv.Set(key, MarshalAccount(acc))
}

// pda/address.go
// 账本地址类型：32 字节，文本形式为 base58（与 Solana 相同）

package pda

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// AddressSize 地址长度（ed25519 公钥长度）
const AddressSize = 32

var (
	// ErrInvalidAddress 非法的地址文本或长度
	ErrInvalidAddress = errors.New("invalid address")
)

// Address 账本上的账户地址。既可以是 ed25519 公钥，也可以是程序派生地址（PDA）
type Address [AddressSize]byte

// SystemProgramID 系统程序地址（全 0，base58 为 "111...1"）
var SystemProgramID = Address{}

// ParseAddress 解析 base58 地址
func ParseAddress(s string) (Address, error) {
	var a Address
	if s == "" {
		return a, ErrInvalidAddress
	}
	raw := base58.Decode(s)
	if len(raw) != AddressSize {
		return a, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, s, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress 仅用于常量/测试
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes 从 32 字节构造地址
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

// Bytes 返回副本
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Equal(b Address) bool {
	return bytes.Equal(a[:], b[:])
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

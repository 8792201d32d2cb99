// types/tx.go
// 金库交易：四个入口 initialize / deposit / withdraw / close

package types

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"pdavault/pda"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// 交易种类，与 vm 中 TxHandler.Kind() 对应
const (
	KindInitialize = "vault_initialize"
	KindDeposit    = "vault_deposit"
	KindWithdraw   = "vault_withdraw"
	KindClose      = "vault_close"
)

// signingDomain 签名消息前缀，防止签名被挪用到别的协议
const signingDomain = "pdavault/tx/v1"

var (
	ErrUnknownKind   = errors.New("unknown tx kind")
	ErrMissingOwner  = errors.New("tx owner is required")
	ErrTxIDMismatch  = errors.New("tx id does not match content")
	ErrMissingSigner = errors.New("tx signer is required")
)

// VaultTx 金库交易
type VaultTx struct {
	TxID   string      `json:"tx_id"`
	Kind   string      `json:"kind"`
	Owner  pda.Address `json:"owner"`
	Amount uint64      `json:"amount,omitempty"`
	Nonce  uint64      `json:"nonce"` // 相同内容的交易靠 nonce 区分

	// 客户端可以显式给出账户地址（对应链上交易里的账户列表），
	// 给出时必须与按 owner 重新派生的地址完全一致
	State *pda.Address `json:"state,omitempty"`
	Vault *pda.Address `json:"vault,omitempty"`

	Signer    pda.Address `json:"signer"`
	Signature []byte      `json:"signature"`
}

// IsKnownKind 是否为已知的交易种类
func IsKnownKind(kind string) bool {
	switch kind {
	case KindInitialize, KindDeposit, KindWithdraw, KindClose:
		return true
	}
	return false
}

func NewInitializeTx(owner pda.Address, nonce uint64) *VaultTx {
	return &VaultTx{Kind: KindInitialize, Owner: owner, Nonce: nonce}
}

func NewDepositTx(owner pda.Address, amount, nonce uint64) *VaultTx {
	return &VaultTx{Kind: KindDeposit, Owner: owner, Amount: amount, Nonce: nonce}
}

func NewWithdrawTx(owner pda.Address, amount, nonce uint64) *VaultTx {
	return &VaultTx{Kind: KindWithdraw, Owner: owner, Amount: amount, Nonce: nonce}
}

func NewCloseTx(owner pda.Address, nonce uint64) *VaultTx {
	return &VaultTx{Kind: KindClose, Owner: owner, Nonce: nonce}
}

// SigningBytes 规范化序列化（签名和 TxID 都基于它）
func (tx *VaultTx) SigningBytes() []byte {
	buf := make([]byte, 0, len(signingDomain)+len(tx.Kind)+2*pda.AddressSize+2*(pda.AddressSize+1)+24)

	buf = append(buf, signingDomain...)

	// 1. Kind（长度前缀）
	buf = append(buf, byte(len(tx.Kind)))
	buf = append(buf, tx.Kind...)

	// 2. Owner / Signer（各 32 bytes）
	buf = append(buf, tx.Owner[:]...)
	buf = append(buf, tx.Signer[:]...)

	// 3. Amount / Nonce（各 8 bytes）
	buf = binary.BigEndian.AppendUint64(buf, tx.Amount)
	buf = binary.BigEndian.AppendUint64(buf, tx.Nonce)

	// 4. 可选账户：1 字节标记 + 32 bytes
	for _, a := range []*pda.Address{tx.State, tx.Vault} {
		if a == nil {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		buf = append(buf, a[:]...)
	}
	return buf
}

// ComputeID 交易哈希
func (tx *VaultTx) ComputeID() string {
	return chainhash.HashH(tx.SigningBytes()).String()
}

// Sign 用私钥签名，同时填好 Signer 与 TxID
func (tx *VaultTx) Sign(priv ed25519.PrivateKey) {
	pub := priv.Public().(ed25519.PublicKey)
	copy(tx.Signer[:], pub)
	tx.Signature = ed25519.Sign(priv, tx.SigningBytes())
	tx.TxID = tx.ComputeID()
}

// VerifySignature 校验 Signer 对交易内容的签名
func (tx *VaultTx) VerifySignature() bool {
	if tx.Signer.IsZero() || len(tx.Signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(tx.Signer[:]), tx.SigningBytes(), tx.Signature)
}

// ValidateBasic 与账本状态无关的基本检查
func (tx *VaultTx) ValidateBasic() error {
	if !IsKnownKind(tx.Kind) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, tx.Kind)
	}
	if tx.Owner.IsZero() {
		return ErrMissingOwner
	}
	if tx.Signer.IsZero() {
		return ErrMissingSigner
	}
	if tx.TxID != tx.ComputeID() {
		return ErrTxIDMismatch
	}
	return nil
}

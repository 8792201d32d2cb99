// vm/vault_state.go
// VaultState 存储：每个 owner 一条，记录 state / vault 两个 PDA 的 bump

package vm

import (
	"bytes"
	"crypto/sha256"

	"pdavault/pda"
)

// VaultState 创建后字段不再变化
type VaultState struct {
	StateBump uint8
	VaultBump uint8
}

const (
	// DiscriminatorSize 记录类型前缀长度
	DiscriminatorSize = 8
	// VaultStateSpace 账户数据长度：前缀 + 两个 bump
	VaultStateSpace = DiscriminatorSize + 2
)

// vaultStateDiscriminator = sha256("account:VaultState")[:8]
var vaultStateDiscriminator = func() []byte {
	sum := sha256.Sum256([]byte("account:VaultState"))
	return sum[:DiscriminatorSize]
}()

// Encode 编码成账户数据
func (s VaultState) Encode() []byte {
	out := make([]byte, 0, VaultStateSpace)
	out = append(out, vaultStateDiscriminator...)
	return append(out, s.StateBump, s.VaultBump)
}

// DecodeVaultState 长度或前缀不对都视为“不是 VaultState 记录”
func DecodeVaultState(data []byte) (VaultState, error) {
	if len(data) != VaultStateSpace {
		return VaultState{}, ErrInvalidOwner.Withf("vault state must be %d bytes, got %d", VaultStateSpace, len(data))
	}
	if !bytes.Equal(data[:DiscriminatorSize], vaultStateDiscriminator) {
		return VaultState{}, ErrInvalidOwner.Withf("account discriminator mismatch")
	}
	return VaultState{StateBump: data[DiscriminatorSize], VaultBump: data[DiscriminatorSize+1]}, nil
}

// ========== 存储操作 ==========

// resolveState 找到 owner 的状态账户地址；客户端给出的地址必须与派生结果一致
func resolveState(rt Runtime, owner pda.Address, supplied *pda.Address) (pda.Address, uint8, error) {
	addr, bump, err := rt.FindProgramAddress(pda.StateSeeds(owner))
	if err != nil {
		return pda.Address{}, 0, ErrInvalidSeeds.Withf("state: %v", err)
	}
	if supplied != nil && *supplied != addr {
		// 地址不是由这个 owner 派生出来的
		return pda.Address{}, 0, ErrInvalidOwner.Withf("state account %s does not belong to owner %s", *supplied, owner)
	}
	return addr, bump, nil
}

// CreateVaultState 分配并写入状态记录，由 owner 出资
func CreateVaultState(rt Runtime, owner pda.Address, supplied *pda.Address, vaultBump uint8) (pda.Address, VaultState, error) {
	addr, stateBump, err := resolveState(rt, owner, supplied)
	if err != nil {
		return pda.Address{}, VaultState{}, err
	}
	signer, err := DeriveSigner(rt.ProgramID(), pda.WithBump(pda.StateSeeds(owner), stateBump))
	if err != nil {
		return pda.Address{}, VaultState{}, err
	}
	if err := rt.CreateAccount(owner, addr, VaultStateSpace, rt.ProgramID(), signer); err != nil {
		return pda.Address{}, VaultState{}, err
	}

	st := VaultState{StateBump: stateBump, VaultBump: vaultBump}
	if err := rt.WriteData(addr, st.Encode()); err != nil {
		return pda.Address{}, VaultState{}, err
	}
	return addr, st, nil
}

// LoadVaultState 读取 owner 的状态记录，并用存储的 stateBump 复现地址
func LoadVaultState(rt Runtime, owner pda.Address, supplied *pda.Address) (pda.Address, VaultState, error) {
	addr, _, err := resolveState(rt, owner, supplied)
	if err != nil {
		return pda.Address{}, VaultState{}, err
	}
	acc, ok, err := rt.Account(addr)
	if err != nil {
		return pda.Address{}, VaultState{}, err
	}
	if !ok {
		return pda.Address{}, VaultState{}, ErrNotFound.Withf("no vault state for owner %s", owner)
	}
	if acc.Owner != rt.ProgramID() {
		return pda.Address{}, VaultState{}, ErrInvalidOwner.Withf("state account %s owned by %s", addr, acc.Owner)
	}
	st, err := DecodeVaultState(acc.Data)
	if err != nil {
		return pda.Address{}, VaultState{}, err
	}

	// 不重新搜索，只验证存储的 bump
	again, err := rt.CreateProgramAddress(pda.WithBump(pda.StateSeeds(owner), st.StateBump))
	if err != nil {
		return pda.Address{}, VaultState{}, ErrInvalidSeeds.Withf("stored state bump %d: %v", st.StateBump, err)
	}
	if again != addr {
		return pda.Address{}, VaultState{}, ErrInvalidSeeds.Withf("stored state bump %d derives %s, not %s", st.StateBump, again, addr)
	}
	return addr, st, nil
}

// DestroyVaultState 关闭状态记录，租金退给 owner
func DestroyVaultState(rt Runtime, owner, stateAddr pda.Address) error {
	return rt.CloseAccount(stateAddr, owner)
}

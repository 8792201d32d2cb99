package vm

import (
	"pdavault/pda"
)

// VaultInfo 某个 owner 的金库视图（只读）
type VaultInfo struct {
	Owner         pda.Address `json:"owner"`
	State         pda.Address `json:"state"`
	Vault         pda.Address `json:"vault"`
	Initialized   bool        `json:"initialized"`
	StateBump     uint8       `json:"state_bump"`
	VaultBump     uint8       `json:"vault_bump"`
	StateLamports uint64      `json:"state_lamports"`
	VaultBalance  uint64      `json:"vault_balance"`
	// 金库在状态记录存在期间必须保持的最低余额
	RentExemptMinimum uint64 `json:"rent_exempt_minimum"`
}

func (x *Executor) readView() StateView {
	return NewStateView(x.ReadFn, x.ScanFn)
}

// QueryVault 派生地址走缓存；已初始化的金库用存储的 bump 返回
func (x *Executor) QueryVault(owner pda.Address) (*VaultInfo, error) {
	stateAddr, stateBump, err := x.Derive.State(owner)
	if err != nil {
		return nil, ErrInvalidSeeds.Withf("state: %v", err)
	}
	vaultAddr, vaultBump, err := x.Derive.Vault(owner)
	if err != nil {
		return nil, ErrInvalidSeeds.Withf("vault: %v", err)
	}
	info := &VaultInfo{
		Owner:             owner,
		State:             stateAddr,
		Vault:             vaultAddr,
		StateBump:         stateBump,
		VaultBump:         vaultBump,
		RentExemptMinimum: x.rent.MinimumBalance(0),
	}

	sv := x.readView()
	if acc, ok, err := GetAccount(sv, stateAddr); err != nil {
		return nil, err
	} else if ok && acc.Owner == x.programID {
		st, err := DecodeVaultState(acc.Data)
		if err != nil {
			return nil, err
		}
		info.Initialized = true
		info.StateBump = st.StateBump
		info.VaultBump = st.VaultBump
		info.StateLamports = acc.Lamports
	}
	if acc, ok, err := GetAccount(sv, vaultAddr); err != nil {
		return nil, err
	} else if ok {
		info.VaultBalance = acc.Lamports
	}
	return info, nil
}

// QueryAccount 读取任意账户记录
func (x *Executor) QueryAccount(addr pda.Address) (*Account, bool, error) {
	return GetAccount(x.readView(), addr)
}

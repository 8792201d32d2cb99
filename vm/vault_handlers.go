// vm/vault_handlers.go
// 金库生命周期：initialize / deposit / withdraw / close
// 每个操作都是：派生并校验地址 → 授权 → 转账 → 写入/删除状态记录

package vm

import (
	"pdavault/pda"
	"pdavault/types"
)

// vaultHandlerBase 四个处理器共享的程序身份和租金参数
type vaultHandlerBase struct {
	ProgramID pda.Address
	Rent      Rent
	// 规范地址的派生缓存，与执行器的查询路径共用
	Derive *pda.Cache
}

func newReceipt(tx *types.VaultTx) *Receipt {
	return &Receipt{
		TxID:  tx.TxID,
		Kind:  tx.Kind,
		Owner: tx.Owner.String(),
	}
}

// begin 直接签名检查，通过后 owner 才是这笔交易的签名者
func (b *vaultHandlerBase) begin(tx *types.VaultTx, sv StateView) (Runtime, error) {
	if err := AuthorizeOwner(tx); err != nil {
		return nil, err
	}
	return newSystemRuntime(b.ProgramID, b.Rent, sv, b.Derive, tx.Owner), nil
}

func (b *vaultHandlerBase) fail(rt Runtime, rc *Receipt, err error) ([]WriteOp, *Receipt, error) {
	if rt != nil {
		rc.Logs = rt.Logs()
	}
	return nil, failedReceipt(rc, err), err
}

func (b *vaultHandlerBase) finish(rt Runtime, sv StateView, rc *Receipt, vault pda.Address) ([]WriteOp, *Receipt, error) {
	bal, err := rt.Balance(vault)
	if err != nil {
		return b.fail(rt, rc, err)
	}
	ws := sv.Diff()
	rc.Status = StatusSucceed
	rc.Logs = rt.Logs()
	rc.WriteCount = len(ws)
	rc.VaultBalance = bal
	return ws, rc, nil
}

// resolveVault 用存储的 vaultBump 换取签名能力，并确认它代表的正是金库地址。
// 金库地址取客户端给出的，没给就按 owner 派生规范地址；两者都不会被静默替换。
func resolveVault(rt Runtime, owner pda.Address, supplied *pda.Address, st VaultState) (pda.Address, SigningCapability, error) {
	signer, err := DeriveSigner(rt.ProgramID(), pda.WithBump(pda.VaultSeeds(owner), st.VaultBump))
	if err != nil {
		return pda.Address{}, SigningCapability{}, err
	}
	var target pda.Address
	if supplied != nil {
		target = *supplied
	} else {
		target, _, err = rt.FindProgramAddress(pda.VaultSeeds(owner))
		if err != nil {
			return pda.Address{}, SigningCapability{}, ErrInvalidSeeds.Withf("vault: %v", err)
		}
	}
	if signer.Address() != target {
		return pda.Address{}, SigningCapability{}, ErrInvalidSeeds.Withf("vault bump %d derives %s, not %s", st.VaultBump, signer.Address(), target)
	}
	return target, signer, nil
}

// ========== initialize ==========

// InitializeTxHandler 创建 VaultState，并用 owner 的钱把金库补到免租金门槛
type InitializeTxHandler struct {
	vaultHandlerBase
}

func (h *InitializeTxHandler) Kind() string {
	return types.KindInitialize
}

func (h *InitializeTxHandler) DryRun(tx *types.VaultTx, sv StateView) ([]WriteOp, *Receipt, error) {
	rc := newReceipt(tx)
	rt, err := h.begin(tx, sv)
	if err != nil {
		return h.fail(nil, rc, err)
	}
	rt.Log("Greetings from: %s", rt.ProgramID())

	vault, vaultBump, err := rt.FindProgramAddress(pda.VaultSeeds(tx.Owner))
	if err != nil {
		return h.fail(rt, rc, ErrInvalidSeeds.Withf("vault: %v", err))
	}
	if tx.Vault != nil && *tx.Vault != vault {
		return h.fail(rt, rc, ErrInvalidSeeds.Withf("vault account %s is not derived from owner %s", *tx.Vault, tx.Owner))
	}

	stateAddr, st, err := CreateVaultState(rt, tx.Owner, tx.State, vaultBump)
	if err != nil {
		return h.fail(rt, rc, err)
	}

	var dataLen uint64
	if acc, ok, err := rt.Account(vault); err != nil {
		return h.fail(rt, rc, err)
	} else if ok {
		dataLen = uint64(len(acc.Data))
	}
	rentExempt := rt.MinimumBalance(dataLen)
	if err := rt.Transfer(tx.Owner, vault, rentExempt); err != nil {
		return h.fail(rt, rc, err)
	}

	rt.Log("state %s (bump %d), vault %s (bump %d) funded with %d", stateAddr, st.StateBump, vault, st.VaultBump, rentExempt)
	return h.finish(rt, sv, rc, vault)
}

// ========== deposit ==========

// DepositTxHandler owner → vault
type DepositTxHandler struct {
	vaultHandlerBase
}

func (h *DepositTxHandler) Kind() string {
	return types.KindDeposit
}

func (h *DepositTxHandler) DryRun(tx *types.VaultTx, sv StateView) ([]WriteOp, *Receipt, error) {
	rc := newReceipt(tx)
	rt, err := h.begin(tx, sv)
	if err != nil {
		return h.fail(nil, rc, err)
	}
	_, st, err := LoadVaultState(rt, tx.Owner, tx.State)
	if err != nil {
		return h.fail(rt, rc, err)
	}
	vault, _, err := resolveVault(rt, tx.Owner, tx.Vault, st)
	if err != nil {
		return h.fail(rt, rc, err)
	}
	if tx.Amount == 0 {
		return h.fail(rt, rc, ErrInvalidAmount)
	}
	if err := rt.Transfer(tx.Owner, vault, tx.Amount); err != nil {
		return h.fail(rt, rc, err)
	}
	return h.finish(rt, sv, rc, vault)
}

// ========== withdraw ==========

// WithdrawTxHandler vault → owner，由派生种子授权
type WithdrawTxHandler struct {
	vaultHandlerBase
}

func (h *WithdrawTxHandler) Kind() string {
	return types.KindWithdraw
}

func (h *WithdrawTxHandler) DryRun(tx *types.VaultTx, sv StateView) ([]WriteOp, *Receipt, error) {
	rc := newReceipt(tx)
	rt, err := h.begin(tx, sv)
	if err != nil {
		return h.fail(nil, rc, err)
	}
	_, st, err := LoadVaultState(rt, tx.Owner, tx.State)
	if err != nil {
		return h.fail(rt, rc, err)
	}
	vault, signer, err := resolveVault(rt, tx.Owner, tx.Vault, st)
	if err != nil {
		return h.fail(rt, rc, err)
	}
	if tx.Amount == 0 {
		return h.fail(rt, rc, ErrInvalidAmount)
	}

	bal, err := rt.Balance(vault)
	if err != nil {
		return h.fail(rt, rc, err)
	}
	if bal < tx.Amount {
		return h.fail(rt, rc, ErrInsufficientFunds.Withf("vault holds %d, requested %d", bal, tx.Amount))
	}
	// 状态记录还在，金库就不能低于门槛（也不能清零）
	floor := rt.MinimumBalance(0)
	if bal-tx.Amount < floor {
		return h.fail(rt, rc, ErrBelowMinimumBalance.Withf("vault would hold %d, minimum %d", bal-tx.Amount, floor))
	}

	if err := rt.TransferSigned(vault, tx.Owner, tx.Amount, signer); err != nil {
		return h.fail(rt, rc, err)
	}
	return h.finish(rt, sv, rc, vault)
}

// ========== close ==========

// CloseTxHandler 清空金库，删除 VaultState，租金全部退回 owner
type CloseTxHandler struct {
	vaultHandlerBase
}

func (h *CloseTxHandler) Kind() string {
	return types.KindClose
}

func (h *CloseTxHandler) DryRun(tx *types.VaultTx, sv StateView) ([]WriteOp, *Receipt, error) {
	rc := newReceipt(tx)
	rt, err := h.begin(tx, sv)
	if err != nil {
		return h.fail(nil, rc, err)
	}
	stateAddr, st, err := LoadVaultState(rt, tx.Owner, tx.State)
	if err != nil {
		return h.fail(rt, rc, err)
	}
	vault, signer, err := resolveVault(rt, tx.Owner, tx.Vault, st)
	if err != nil {
		return h.fail(rt, rc, err)
	}

	bal, err := rt.Balance(vault)
	if err != nil {
		return h.fail(rt, rc, err)
	}
	if bal > 0 {
		if err := rt.TransferSigned(vault, tx.Owner, bal, signer); err != nil {
			return h.fail(rt, rc, err)
		}
	}
	if err := DestroyVaultState(rt, tx.Owner, stateAddr); err != nil {
		return h.fail(rt, rc, err)
	}
	rt.Log("vault %s closed, %d lamports returned", vault, bal)
	return h.finish(rt, sv, rc, vault)
}

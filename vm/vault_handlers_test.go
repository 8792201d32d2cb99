package vm_test

import (
	"testing"

	"pdavault/keys"
	"pdavault/pda"
	"pdavault/types"
	"pdavault/vm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	stateRent = rent.MinimumBalance(vm.VaultStateSpace) // 960480
	vaultRent = rent.MinimumBalance(0)                  // 890880
)

func initVault(t *testing.T, x *vm.Executor, w wallet) *vm.Receipt {
	t.Helper()
	rc, err := x.ExecuteTx(signed(types.NewInitializeTx(w.addr, 1), w))
	require.NoError(t, err)
	require.Equal(t, vm.StatusSucceed, rc.Status)
	return rc
}

func TestInitializeCreatesStateAndFundsVault(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	state, vault := stateAndVault(t, w.addr)

	rc := initVault(t, x, w)
	assert.Contains(t, rc.Logs, "Greetings from: "+programID.String())
	assert.Equal(t, vaultRent, rc.VaultBalance)

	acc, ok, err := x.QueryAccount(state)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, programID, acc.Owner)
	assert.Len(t, acc.Data, vm.VaultStateSpace)
	assert.Equal(t, stateRent, acc.Lamports)

	assert.Equal(t, vaultRent, balanceOf(t, db, vault))
	assert.Equal(t, ownerFunds-stateRent-vaultRent, balanceOf(t, db, w.addr))

	// 存储的 bump 就是规范 bump
	_, stateBump, err := pda.StateAddress(programID, w.addr)
	require.NoError(t, err)
	_, vaultBump, err := pda.VaultAddress(programID, w.addr)
	require.NoError(t, err)
	st, err := vm.DecodeVaultState(acc.Data)
	require.NoError(t, err)
	assert.Equal(t, vm.VaultState{StateBump: stateBump, VaultBump: vaultBump}, st)

	info, err := x.QueryVault(w.addr)
	require.NoError(t, err)
	assert.True(t, info.Initialized)
	assert.Equal(t, state, info.State)
	assert.Equal(t, vault, info.Vault)
	assert.Equal(t, vaultRent, info.VaultBalance)
	assert.Equal(t, vaultRent, info.RentExemptMinimum)
}

func TestInitializeTwiceFails(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	initVault(t, x, w)
	before := balanceOf(t, db, w.addr)

	rc, err := x.ExecuteTx(signed(types.NewInitializeTx(w.addr, 2), w))
	require.ErrorIs(t, err, vm.ErrAlreadyInitialized)
	assert.Equal(t, vm.StatusFailed, rc.Status)
	assert.Equal(t, uint32(vm.CodeAlreadyInitialized), rc.ErrorCode)
	assert.Equal(t, before, balanceOf(t, db, w.addr))
}

func TestInitializeUnderfundedOwner(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newWallet(t)
	fund(t, db, w.addr, stateRent) // 不够再给金库补门槛
	state, vault := stateAndVault(t, w.addr)

	_, err := x.ExecuteTx(signed(types.NewInitializeTx(w.addr, 1), w))
	require.ErrorIs(t, err, vm.ErrInsufficientFunds)
	assert.False(t, accountExists(t, db, state))
	assert.False(t, accountExists(t, db, vault))
	assert.Equal(t, stateRent, balanceOf(t, db, w.addr))
}

func TestDepositKeepsBumps(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	state, vault := stateAndVault(t, w.addr)
	initVault(t, x, w)
	stateBefore, _ := db.Get(keys.KeyAccount(state.String()))

	rc, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, sol, 2), w))
	require.NoError(t, err)
	assert.Equal(t, vaultRent+sol, rc.VaultBalance)
	assert.Equal(t, vaultRent+sol, balanceOf(t, db, vault))
	assert.Equal(t, ownerFunds-stateRent-vaultRent-sol, balanceOf(t, db, w.addr))

	stateAfter, _ := db.Get(keys.KeyAccount(state.String()))
	assert.Equal(t, stateBefore, stateAfter)
}

func TestDepositZeroAmount(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	initVault(t, x, w)

	_, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, 0, 2), w))
	require.ErrorIs(t, err, vm.ErrInvalidAmount)
}

func TestDepositMoreThanOwnerHas(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	_, vault := stateAndVault(t, w.addr)
	initVault(t, x, w)

	_, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, ownerFunds, 2), w))
	require.ErrorIs(t, err, vm.ErrInsufficientFunds)
	assert.Equal(t, vaultRent, balanceOf(t, db, vault))
}

func TestRoundTripWithTightlyFundedOwner(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newWallet(t)
	total := stateRent + vaultRent + 1000
	fund(t, db, w.addr, total)
	state, vault := stateAndVault(t, w.addr)

	initVault(t, x, w)
	assert.Equal(t, uint64(1000), balanceOf(t, db, w.addr))

	// 钱包余额可以降到门槛以下，直至为 0
	rc, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, 1000, 2), w))
	require.NoError(t, err)
	assert.Equal(t, vaultRent+1000, rc.VaultBalance)
	assert.Zero(t, balanceOf(t, db, w.addr))

	rc, err = x.ExecuteTx(signed(types.NewWithdrawTx(w.addr, 400, 3), w))
	require.NoError(t, err)
	assert.Equal(t, vaultRent+600, rc.VaultBalance)
	assert.Equal(t, uint64(400), balanceOf(t, db, w.addr))

	_, err = x.ExecuteTx(signed(types.NewCloseTx(w.addr, 4), w))
	require.NoError(t, err)
	assert.Equal(t, total, balanceOf(t, db, w.addr))
	assert.False(t, accountExists(t, db, state))
	assert.False(t, accountExists(t, db, vault))
}

func TestDepositLeavingOwnerOneLamport(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	_, vault := stateAndVault(t, w.addr)
	initVault(t, x, w)
	ownerBal := balanceOf(t, db, w.addr)

	_, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, ownerBal-1, 2), w))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), balanceOf(t, db, w.addr))
	assert.Equal(t, vaultRent+ownerBal-1, balanceOf(t, db, vault))
}

func TestWithdrawRoundTrip(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	_, vault := stateAndVault(t, w.addr)
	initVault(t, x, w)
	afterInit := balanceOf(t, db, w.addr)

	_, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, 3*sol, 2), w))
	require.NoError(t, err)
	rc, err := x.ExecuteTx(signed(types.NewWithdrawTx(w.addr, 3*sol, 3), w))
	require.NoError(t, err)

	assert.Equal(t, vaultRent, rc.VaultBalance)
	assert.Equal(t, vaultRent, balanceOf(t, db, vault))
	assert.Equal(t, afterInit, balanceOf(t, db, w.addr))
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	_, vault := stateAndVault(t, w.addr)
	initVault(t, x, w)
	_, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, sol, 2), w))
	require.NoError(t, err)
	ownerBefore := balanceOf(t, db, w.addr)

	withdraw := signed(types.NewWithdrawTx(w.addr, 2*sol, 3), w)
	rc, err := x.ExecuteTx(withdraw)
	require.ErrorIs(t, err, vm.ErrInsufficientFunds)
	assert.Equal(t, vm.StatusFailed, rc.Status)

	assert.Equal(t, vaultRent+sol, balanceOf(t, db, vault))
	assert.Equal(t, ownerBefore, balanceOf(t, db, w.addr))

	// 失败的交易也有回执
	stored, ok, err := x.GetReceipt(withdraw.TxID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(vm.CodeInsufficientFunds), stored.ErrorCode)
}

func TestWithdrawBelowMinimumBalance(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	_, vault := stateAndVault(t, w.addr)
	initVault(t, x, w)
	_, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, sol, 2), w))
	require.NoError(t, err)

	// 取光会让金库低于门槛，只有 close 可以清空
	_, err = x.ExecuteTx(signed(types.NewWithdrawTx(w.addr, vaultRent+sol, 3), w))
	require.ErrorIs(t, err, vm.ErrBelowMinimumBalance)
	_, err = x.ExecuteTx(signed(types.NewWithdrawTx(w.addr, sol+1, 4), w))
	require.ErrorIs(t, err, vm.ErrBelowMinimumBalance)
	assert.Equal(t, vaultRent+sol, balanceOf(t, db, vault))

	_, err = x.ExecuteTx(signed(types.NewWithdrawTx(w.addr, sol, 5), w))
	require.NoError(t, err)
}

func TestCloseReturnsEverything(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	state, vault := stateAndVault(t, w.addr)
	initVault(t, x, w)
	_, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, 2*sol, 2), w))
	require.NoError(t, err)

	rc, err := x.ExecuteTx(signed(types.NewCloseTx(w.addr, 3), w))
	require.NoError(t, err)
	assert.Zero(t, rc.VaultBalance)

	assert.False(t, accountExists(t, db, state))
	assert.False(t, accountExists(t, db, vault))
	assert.Equal(t, ownerFunds, balanceOf(t, db, w.addr))

	info, err := x.QueryVault(w.addr)
	require.NoError(t, err)
	assert.False(t, info.Initialized)

	// 关闭之后的操作找不到状态记录
	_, err = x.ExecuteTx(signed(types.NewDepositTx(w.addr, sol, 4), w))
	require.ErrorIs(t, err, vm.ErrNotFound)

	// 可以重新初始化
	rc, err = x.ExecuteTx(signed(types.NewInitializeTx(w.addr, 5), w))
	require.NoError(t, err)
	assert.Equal(t, vaultRent, rc.VaultBalance)
}

func TestOperationsBeforeInitialize(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)

	for i, tx := range []*types.VaultTx{
		types.NewDepositTx(w.addr, sol, 1),
		types.NewWithdrawTx(w.addr, sol, 2),
		types.NewCloseTx(w.addr, 3),
	} {
		_, err := x.ExecuteTx(signed(tx, w))
		require.ErrorIs(t, err, vm.ErrNotFound, "tx %d", i)
	}
	assert.Equal(t, ownerFunds, balanceOf(t, db, w.addr))
}

func TestLamportsConserved(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	state, vault := stateAndVault(t, w.addr)
	total := func() uint64 {
		return balanceOf(t, db, w.addr) + balanceOf(t, db, state) + balanceOf(t, db, vault)
	}

	txs := []*types.VaultTx{
		types.NewInitializeTx(w.addr, 1),
		types.NewDepositTx(w.addr, 5*sol, 2),
		types.NewWithdrawTx(w.addr, 2*sol, 3),
		types.NewWithdrawTx(w.addr, 10*sol, 4), // 失败
		types.NewDepositTx(w.addr, sol/2, 5),
		types.NewCloseTx(w.addr, 6),
	}
	for _, tx := range txs {
		_, _ = x.ExecuteTx(signed(tx, w))
		assert.Equal(t, ownerFunds, total())
	}
}

// ========== 授权 ==========

func TestNotOwner(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	mallory := newFundedWallet(t, db)
	_, vault := stateAndVault(t, w.addr)
	initVault(t, x, w)
	_, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, sol, 2), w))
	require.NoError(t, err)

	// owner 写的是 w，签名的是 mallory
	rc, err := x.ExecuteTx(signed(types.NewWithdrawTx(w.addr, sol, 3), mallory))
	require.ErrorIs(t, err, vm.ErrNotOwner)
	assert.Equal(t, uint32(6000), rc.ErrorCode)
	assert.Contains(t, rc.Error, "You are not the owner of this vault")

	_, err = x.ExecuteTx(signed(types.NewCloseTx(w.addr, 4), mallory))
	require.ErrorIs(t, err, vm.ErrNotOwner)

	assert.Equal(t, vaultRent+sol, balanceOf(t, db, vault))
	assert.Equal(t, ownerFunds, balanceOf(t, db, mallory.addr))
}

func TestBadSignatureNotRecorded(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)

	tx := signed(types.NewInitializeTx(w.addr, 1), w)
	tx.Signature = append([]byte(nil), tx.Signature...)
	tx.Signature[0] ^= 0xff

	rc, err := x.ExecuteTx(tx)
	require.ErrorIs(t, err, vm.ErrUnauthorized)
	assert.Equal(t, vm.StatusFailed, rc.Status)

	_, ok, err := x.GetReceipt(tx.TxID)
	require.NoError(t, err)
	assert.False(t, ok)

	// 正确签名的同一笔交易仍然可以执行
	initVault(t, x, w)
}

func TestHandlerRejectsUnsignedTx(t *testing.T) {
	db := NewMockDB()
	w := newFundedWallet(t, db)
	reg := vm.NewHandlerRegistry()
	require.NoError(t, vm.RegisterDefaultHandlers(reg, programID, rent))
	h, ok := reg.Get(types.KindInitialize)
	require.True(t, ok)

	tx := types.NewInitializeTx(w.addr, 1)
	tx.TxID = tx.ComputeID()
	ws, rc, err := h.DryRun(tx, NewMockStateView(db))
	require.ErrorIs(t, err, vm.ErrUnauthorized)
	assert.Nil(t, ws)
	assert.Equal(t, vm.StatusFailed, rc.Status)
}

// ========== 地址校验 ==========

func TestSuppliedVaultMismatch(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	other := newWallet(t)
	_, otherVault := stateAndVault(t, other.addr)

	tx := types.NewInitializeTx(w.addr, 1)
	tx.Vault = &otherVault
	_, err := x.ExecuteTx(signed(tx, w))
	require.ErrorIs(t, err, vm.ErrInvalidSeeds)

	initVault(t, x, w)
	dep := types.NewDepositTx(w.addr, sol, 2)
	dep.Vault = &otherVault
	_, err = x.ExecuteTx(signed(dep, w))
	require.ErrorIs(t, err, vm.ErrInvalidSeeds)

	// 给出正确地址时正常执行
	_, vault := stateAndVault(t, w.addr)
	dep = types.NewDepositTx(w.addr, sol, 3)
	dep.Vault = &vault
	_, err = x.ExecuteTx(signed(dep, w))
	require.NoError(t, err)
}

func TestSuppliedStateMismatch(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	other := newFundedWallet(t, db)
	initVault(t, x, w)
	initVault(t, x, other)
	otherState, _ := stateAndVault(t, other.addr)

	tx := types.NewWithdrawTx(w.addr, 1, 2)
	tx.State = &otherState
	_, err := x.ExecuteTx(signed(tx, w))
	require.ErrorIs(t, err, vm.ErrInvalidOwner)
}

// corruptState 直接改写库里的 VaultState
func corruptState(t *testing.T, db *MockDB, owner pda.Address, mutate func(*vm.VaultState)) {
	t.Helper()
	state, _ := stateAndVault(t, owner)
	sv := NewMockStateView(db)
	acc, ok, err := vm.GetAccount(sv, state)
	require.NoError(t, err)
	require.True(t, ok)
	st, err := vm.DecodeVaultState(acc.Data)
	require.NoError(t, err)
	mutate(&st)
	acc.Data = st.Encode()
	db.mu.Lock()
	db.data[keys.KeyAccount(state.String())] = vm.MarshalAccount(acc)
	db.mu.Unlock()
}

func TestCorruptedVaultBump(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	_, vault := stateAndVault(t, w.addr)
	initVault(t, x, w)
	corruptState(t, db, w.addr, func(st *vm.VaultState) { st.VaultBump ^= 0x01 })

	_, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, sol, 2), w))
	require.ErrorIs(t, err, vm.ErrInvalidSeeds)
	_, err = x.ExecuteTx(signed(types.NewCloseTx(w.addr, 3), w))
	require.ErrorIs(t, err, vm.ErrInvalidSeeds)
	assert.Equal(t, vaultRent, balanceOf(t, db, vault))
}

func TestWithdrawWithCorruptedVaultBump(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	_, vault := stateAndVault(t, w.addr)
	initVault(t, x, w)
	_, err := x.ExecuteTx(signed(types.NewDepositTx(w.addr, sol, 2), w))
	require.NoError(t, err)
	ownerBefore := balanceOf(t, db, w.addr)
	corruptState(t, db, w.addr, func(st *vm.VaultState) { st.VaultBump-- })

	rc, err := x.ExecuteTx(signed(types.NewWithdrawTx(w.addr, sol/2, 3), w))
	require.ErrorIs(t, err, vm.ErrInvalidSeeds)
	assert.Equal(t, uint32(vm.CodeInvalidSeeds), rc.ErrorCode)
	assert.Equal(t, ownerBefore, balanceOf(t, db, w.addr))
	assert.Equal(t, vaultRent+sol, balanceOf(t, db, vault))
}

func TestCorruptedStateBump(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	initVault(t, x, w)
	corruptState(t, db, w.addr, func(st *vm.VaultState) { st.StateBump ^= 0x01 })

	_, err := x.ExecuteTx(signed(types.NewWithdrawTx(w.addr, 1, 2), w))
	require.ErrorIs(t, err, vm.ErrInvalidSeeds)
}

func TestStateRecordWithWrongDiscriminator(t *testing.T) {
	x, db := newTestExecutor(t)
	w := newFundedWallet(t, db)
	state, _ := stateAndVault(t, w.addr)
	initVault(t, x, w)

	acc, _, err := x.QueryAccount(state)
	require.NoError(t, err)
	acc.Data[0] ^= 0xff
	db.mu.Lock()
	db.data[keys.KeyAccount(state.String())] = vm.MarshalAccount(acc)
	db.mu.Unlock()

	_, err = x.ExecuteTx(signed(types.NewDepositTx(w.addr, sol, 2), w))
	require.ErrorIs(t, err, vm.ErrInvalidOwner)
}

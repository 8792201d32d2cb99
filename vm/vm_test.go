package vm_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"sync"
	"testing"

	"pdavault/config"
	"pdavault/keys"
	"pdavault/pda"
	"pdavault/types"
	"pdavault/vm"

	"github.com/stretchr/testify/require"
)

// ========== Mock数据库实现 ==========

type MockDB struct {
	mu      sync.RWMutex
	data    map[string][]byte
	pending []func()
	flushes int
}

func NewMockDB() *MockDB {
	return &MockDB{
		data:    make(map[string][]byte),
		pending: make([]func(), 0),
	}
}

func (db *MockDB) Get(key string) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	val, exists := db.data[key]
	if !exists {
		return nil, nil
	}
	return val, nil
}

func (db *MockDB) Scan(prefix string) (map[string][]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string][]byte)
	for k, v := range db.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (db *MockDB) EnqueueSet(key, value string) {
	db.pending = append(db.pending, func() {
		db.data[key] = []byte(value)
	})
}

func (db *MockDB) EnqueueDel(key string) {
	db.pending = append(db.pending, func() {
		delete(db.data, key)
	})
}

func (db *MockDB) ForceFlush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, op := range db.pending {
		op()
	}
	db.pending = db.pending[:0]
	db.flushes++
	return nil
}

// NewMockStateView 直接读 MockDB 的视图
func NewMockStateView(db *MockDB) vm.StateView {
	return vm.NewStateView(db.Get, db.Scan)
}

// ========== 测试辅助 ==========

const (
	sol        = uint64(1_000_000_000)
	ownerFunds = 10 * sol
)

var (
	programID = pda.MustParseAddress(config.DefaultProgramID)
	rent      = vm.DefaultRent()
)

type wallet struct {
	addr pda.Address
	priv ed25519.PrivateKey
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	addr, err := pda.AddressFromBytes(pub)
	require.NoError(t, err)
	return wallet{addr: addr, priv: priv}
}

// fund 直接往库里写一个系统账户
func fund(t *testing.T, db *MockDB, addr pda.Address, lamports uint64) {
	t.Helper()
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[keys.KeyAccount(addr.String())] = vm.MarshalAccount(&vm.Account{Lamports: lamports})
}

func balanceOf(t *testing.T, db *MockDB, addr pda.Address) uint64 {
	t.Helper()
	acc, ok, err := vm.GetAccount(NewMockStateView(db), addr)
	require.NoError(t, err)
	if !ok {
		return 0
	}
	return acc.Lamports
}

func accountExists(t *testing.T, db *MockDB, addr pda.Address) bool {
	t.Helper()
	_, ok, err := vm.GetAccount(NewMockStateView(db), addr)
	require.NoError(t, err)
	return ok
}

func newTestExecutor(t *testing.T) (*vm.Executor, *MockDB) {
	t.Helper()
	db := NewMockDB()
	x, err := vm.NewExecutor(db, nil, config.DefaultConfig())
	require.NoError(t, err)
	return x, db
}

func newFundedWallet(t *testing.T, db *MockDB) wallet {
	t.Helper()
	w := newWallet(t)
	fund(t, db, w.addr, ownerFunds)
	return w
}

func signed(tx *types.VaultTx, w wallet) *types.VaultTx {
	tx.Sign(w.priv)
	return tx
}

func stateAndVault(t *testing.T, owner pda.Address) (pda.Address, pda.Address) {
	t.Helper()
	state, _, err := pda.StateAddress(programID, owner)
	require.NoError(t, err)
	vault, _, err := pda.VaultAddress(programID, owner)
	require.NoError(t, err)
	return state, vault
}

// ========== 测试用例 ==========

func TestRegisterDefaultHandlers(t *testing.T) {
	reg := vm.NewHandlerRegistry()
	require.NoError(t, vm.RegisterDefaultHandlers(reg, programID, rent))
	require.Equal(t, []string{
		types.KindClose, types.KindDeposit, types.KindInitialize, types.KindWithdraw,
	}, reg.List())

	// 重复注册
	require.Error(t, vm.RegisterDefaultHandlers(reg, programID, rent))
	require.Error(t, reg.Register(nil))
}

func TestDefaultKindFn(t *testing.T) {
	_, err := vm.DefaultKindFn(nil)
	require.ErrorIs(t, err, vm.ErrNilTx)

	_, err = vm.DefaultKindFn(&types.VaultTx{Kind: "transfer"})
	require.ErrorIs(t, err, types.ErrUnknownKind)

	kind, err := vm.DefaultKindFn(&types.VaultTx{Kind: types.KindDeposit})
	require.NoError(t, err)
	require.Equal(t, types.KindDeposit, kind)
}

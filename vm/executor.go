package vm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"pdavault/config"
	"pdavault/keys"
	"pdavault/logs"
	"pdavault/pda"
	"pdavault/types"

	lru "github.com/hashicorp/golang-lru"
	"github.com/spaolacci/murmur3"
)

// ownerLockStripes owner 锁的分段数
const ownerLockStripes = 256

// Executor VM执行器：一次一笔交易，要么整体落库，要么只留下失败回执
type Executor struct {
	DB     DBManager
	Reg    *HandlerRegistry
	KFn    KindFn
	ReadFn ReadThroughFn
	ScanFn ScanFn
	Derive *pda.Cache

	programID pda.Address
	rent      Rent
	workers   int
	receipts  *lru.Cache
	now       func() int64

	// 同一 owner 的交易串行；不同 owner 的账户集合互不相交，可以并行
	ownerLocks [ownerLockStripes]sync.Mutex
	// DBManager 的待写队列是共享的，EnqueueSet..ForceFlush 必须成组执行
	commitMu sync.Mutex

	// 库里是否已经记录了程序 ID
	programBound atomic.Bool

	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// BatchResult 批量执行中单笔交易的结果，顺序与输入一致
type BatchResult struct {
	Receipt *Receipt
	Err     error
}

// ExecStats 执行计数
type ExecStats struct {
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
}

// NewExecutor reg 为 nil 时注册默认的金库处理器
func NewExecutor(db DBManager, reg *HandlerRegistry, cfg *config.Config) (*Executor, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	programID, err := cfg.ProgramAddress()
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	// 同一个库只能服务一个程序 ID，否则所有派生地址都会变
	stored, err := db.Get(keys.KeyProgramID())
	if err != nil {
		return nil, fmt.Errorf("read program id: %w", err)
	}
	if stored != nil && string(stored) != programID.String() {
		return nil, fmt.Errorf("%w: database is bound to %s, config has %s", ErrProgramIDMismatch, stored, programID)
	}

	rent := RentFromConfig(cfg.Rent)
	derive := pda.NewCache(programID, cfg.Executor.DeriveCacheSize)
	if reg == nil {
		reg = NewHandlerRegistry()
		if err := registerVaultHandlers(reg, derive, rent); err != nil {
			return nil, err
		}
	}
	size := cfg.Executor.ReceiptCacheSize
	if size <= 0 {
		size = 10000
	}
	receipts, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("receipt cache: %w", err)
	}
	workers := cfg.Executor.Workers
	if workers <= 0 {
		workers = 1
	}

	executor := &Executor{
		DB:        db,
		Reg:       reg,
		KFn:       DefaultKindFn,
		Derive:    derive,
		programID: programID,
		rent:      rent,
		workers:   workers,
		receipts:  receipts,
		now:       func() int64 { return time.Now().Unix() },
	}
	executor.programBound.Store(stored != nil)

	// 设置ReadFn
	executor.ReadFn = func(key string) ([]byte, error) {
		return db.Get(key)
	}

	// 设置ScanFn
	executor.ScanFn = func(prefix string) (map[string][]byte, error) {
		return db.Scan(prefix)
	}

	return executor, nil
}

// ProgramID 执行器绑定的程序 ID
func (x *Executor) ProgramID() pda.Address {
	return x.programID
}

// Rent 执行器使用的租金参数
func (x *Executor) Rent() Rent {
	return x.rent
}

// Stats 执行计数快照
func (x *Executor) Stats() ExecStats {
	return ExecStats{Succeeded: x.succeeded.Load(), Failed: x.failed.Load()}
}

func (x *Executor) ownerLock(owner pda.Address) *sync.Mutex {
	return &x.ownerLocks[murmur3.Sum32(owner[:])%ownerLockStripes]
}

// ExecuteTx 执行并提交一笔交易。
// 业务失败时返回的回执状态为 FAILED，同时返回对应错误；回执仍然落库，账户状态不变。
func (x *Executor) ExecuteTx(tx *types.VaultTx) (*Receipt, error) {
	if tx == nil {
		return nil, ErrNilTx
	}
	if err := tx.ValidateBasic(); err != nil {
		return nil, err
	}
	// 签名无效的交易不落库，避免伪造签名抢占合法交易的 txID
	if !tx.VerifySignature() {
		err := ErrUnauthorized.Withf("signature by %s does not verify", tx.Signer)
		return failedReceipt(newReceipt(tx), err), err
	}

	kind, err := x.KFn(tx)
	if err != nil {
		return nil, err
	}
	h, ok := x.Reg.Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, kind)
	}

	lock := x.ownerLock(tx.Owner)
	lock.Lock()
	defer lock.Unlock()

	if x.isTxApplied(tx.TxID) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTx, tx.TxID)
	}

	sv := NewStateView(x.ReadFn, x.ScanFn)
	// 创建快照点，用于失败时回滚
	snapshot := sv.Snapshot()

	_, rc, txErr := h.DryRun(tx, sv)
	if txErr != nil {
		if err := sv.Revert(snapshot); err != nil {
			return nil, err
		}
		if rc == nil {
			rc = failedReceipt(newReceipt(tx), txErr)
		}
		rc.Status = StatusFailed
		if rc.Error == "" {
			rc.Error = txErr.Error()
		}
		logs.Info("[VM] Tx %s (%s) mark as FAILED: %v", tx.TxID, kind, txErr)
	}
	rc.Timestamp = x.now()

	if err := x.recordTx(sv, tx, rc); err != nil {
		return nil, err
	}
	if err := x.commit(sv); err != nil {
		return nil, fmt.Errorf("commit tx %s: %w", tx.TxID, err)
	}
	x.programBound.Store(true)
	x.receipts.Add(tx.TxID, rc)

	if txErr != nil {
		x.failed.Add(1)
		return rc, txErr
	}
	x.succeeded.Add(1)
	logs.Debug("[VM] Tx %s (%s) owner=%s writes=%d vault_balance=%d",
		tx.TxID, kind, tx.Owner, rc.WriteCount, rc.VaultBalance)
	return rc, nil
}

// recordTx 交易原文、回执和 owner 索引与状态变更写在同一个视图里，一起提交
func (x *Executor) recordTx(sv StateView, tx *types.VaultTx, rc *Receipt) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal tx: %w", err)
	}
	rcBytes, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	sv.Set(keys.KeyTxRaw(tx.TxID), raw)
	sv.Set(keys.KeyReceipt(tx.TxID), rcBytes)

	owner := tx.Owner.String()
	var seq uint64
	if v, ok, err := sv.Get(keys.KeyOwnerTxSeq(owner)); err != nil {
		return err
	} else if ok {
		seq, err = strconv.ParseUint(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("owner tx seq for %s: %w", owner, err)
		}
	}
	sv.Set(keys.KeyOwnerTx(owner, seq), []byte(tx.TxID))
	sv.Set(keys.KeyOwnerTxSeq(owner), []byte(strconv.FormatUint(seq+1, 10)))
	if !x.programBound.Load() {
		sv.Set(keys.KeyProgramID(), []byte(x.programID.String()))
	}
	return nil
}

func (x *Executor) commit(sv StateView) error {
	x.commitMu.Lock()
	defer x.commitMu.Unlock()
	for _, w := range sv.Diff() {
		if w.Del {
			x.DB.EnqueueDel(w.Key)
		} else {
			x.DB.EnqueueSet(w.Key, string(w.Value))
		}
	}
	// 强制刷新到数据库
	return x.DB.ForceFlush()
}

// ExecuteBatch 按 owner 分片并行执行；同一 owner 的交易保持输入顺序
func (x *Executor) ExecuteBatch(txs []*types.VaultTx) []BatchResult {
	results := make([]BatchResult, len(txs))
	shards := make([][]int, x.workers)
	for i, tx := range txs {
		if tx == nil {
			results[i].Err = ErrNilTx
			continue
		}
		s := murmur3.Sum32(tx.Owner[:]) % uint32(x.workers)
		shards[s] = append(shards[s], i)
	}

	var wg sync.WaitGroup
	for _, idx := range shards {
		if len(idx) == 0 {
			continue
		}
		wg.Add(1)
		go func(idx []int) {
			defer wg.Done()
			for _, i := range idx {
				rc, err := x.ExecuteTx(txs[i])
				results[i] = BatchResult{Receipt: rc, Err: err}
			}
		}(idx)
	}
	wg.Wait()
	return results
}

func (x *Executor) isTxApplied(txID string) bool {
	if txID == "" {
		return false
	}
	if x.receipts.Contains(txID) {
		return true
	}
	v, err := x.DB.Get(keys.KeyReceipt(txID))
	return err == nil && v != nil
}

// GetReceipt 查询交易回执，不存在时返回 (nil, false, nil)
func (x *Executor) GetReceipt(txID string) (*Receipt, bool, error) {
	if v, ok := x.receipts.Get(txID); ok {
		return v.(*Receipt), true, nil
	}
	data, err := x.DB.Get(keys.KeyReceipt(txID))
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}
	var rc Receipt
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, false, fmt.Errorf("decode receipt %s: %w", txID, err)
	}
	x.receipts.Add(txID, &rc)
	return &rc, true, nil
}

// GetTransactionStatus 获取交易状态，未执行过的返回 PENDING
func (x *Executor) GetTransactionStatus(txID string) (string, error) {
	rc, ok, err := x.GetReceipt(txID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "PENDING", nil
	}
	return rc.Status, nil
}

// OwnerTxIDs 按提交顺序列出 owner 的交易
func (x *Executor) OwnerTxIDs(owner pda.Address) ([]string, error) {
	m, err := x.DB.Scan(keys.KeyOwnerTxPrefix(owner.String()))
	if err != nil {
		return nil, err
	}
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	// 序号是定长补零的，按 key 排序即按提交顺序
	sort.Strings(ks)
	out := make([]string, 0, len(ks))
	for _, k := range ks {
		out = append(out, string(m[k]))
	}
	return out, nil
}

package vm

import (
	"fmt"

	"pdavault/pda"
)

// systemRuntime 基于 StateView 的 Runtime 实现，相当于系统程序 + 租金规则
type systemRuntime struct {
	programID pda.Address
	rent      Rent
	sv        StateView
	derive    *pda.Cache // 可以为 nil
	signers   map[pda.Address]struct{}
	logs      []string
}

// NewSystemRuntime signers 必须是已经验过签名的地址
func NewSystemRuntime(programID pda.Address, rent Rent, sv StateView, signers ...pda.Address) Runtime {
	return newSystemRuntime(programID, rent, sv, nil, signers...)
}

func newSystemRuntime(programID pda.Address, rent Rent, sv StateView, derive *pda.Cache, signers ...pda.Address) *systemRuntime {
	set := make(map[pda.Address]struct{}, len(signers))
	for _, s := range signers {
		set[s] = struct{}{}
	}
	if derive != nil && derive.ProgramID() != programID {
		derive = nil
	}
	return &systemRuntime{
		programID: programID,
		rent:      rent,
		sv:        sv,
		derive:    derive,
		signers:   set,
	}
}

func (r *systemRuntime) ProgramID() pda.Address {
	return r.programID
}

// FindProgramAddress 有派生缓存时走缓存
func (r *systemRuntime) FindProgramAddress(seeds [][]byte) (pda.Address, uint8, error) {
	if r.derive != nil {
		return r.derive.Find(seeds)
	}
	return pda.FindProgramAddress(seeds, r.programID)
}

func (r *systemRuntime) CreateProgramAddress(seeds [][]byte) (pda.Address, error) {
	return pda.CreateProgramAddress(seeds, r.programID)
}

func (r *systemRuntime) IsSigner(addr pda.Address) bool {
	_, ok := r.signers[addr]
	return ok
}

func (r *systemRuntime) MinimumBalance(space uint64) uint64 {
	return r.rent.MinimumBalance(space)
}

func (r *systemRuntime) Account(addr pda.Address) (*Account, bool, error) {
	return GetAccount(r.sv, addr)
}

func (r *systemRuntime) Balance(addr pda.Address) (uint64, error) {
	acc, ok, err := GetAccount(r.sv, addr)
	if err != nil || !ok {
		return 0, err
	}
	return acc.Lamports, nil
}

func (r *systemRuntime) Transfer(from, to pda.Address, amount uint64) error {
	if !r.IsSigner(from) {
		return ErrUnauthorized.Withf("%s did not sign", from)
	}
	return r.move(from, to, amount)
}

func (r *systemRuntime) TransferSigned(from, to pda.Address, amount uint64, signer SigningCapability) error {
	if err := signer.verify(r.programID, from); err != nil {
		return err
	}
	return r.move(from, to, amount)
}

// move 系统程序转账：from 必须是系统账户且不带数据，两端都要满足租金规则
func (r *systemRuntime) move(from, to pda.Address, amount uint64) error {
	if from == to {
		return fmt.Errorf("transfer to self: %s", from)
	}
	src, ok, err := GetAccount(r.sv, from)
	if err != nil {
		return err
	}
	if !ok {
		src = &Account{Owner: pda.SystemProgramID}
	}
	if !src.IsSystemOwned() || len(src.Data) > 0 {
		return ErrInvalidOwner.Withf("transfer source %s must be a system account without data", from)
	}
	newSrc, err := SafeSub(src.Lamports, amount)
	if err != nil {
		return ErrInsufficientFunds.Withf("%s has %d, need %d", from, src.Lamports, amount)
	}

	dst, ok, err := GetAccount(r.sv, to)
	if err != nil {
		return err
	}
	if !ok {
		dst = &Account{Owner: pda.SystemProgramID}
	}
	newDst, err := SafeAdd(dst.Lamports, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}

	if err := r.checkRentTransition(from, src, newSrc); err != nil {
		return err
	}
	if err := r.checkRentTransition(to, dst, newDst); err != nil {
		return err
	}

	src.Lamports = newSrc
	dst.Lamports = newDst
	SetAccount(r.sv, from, src)
	SetAccount(r.sv, to, dst)
	return nil
}

// rentBound 受租金约束的账户：带数据、归程序所有，或者是程序派生地址（金库、状态账户）。
// 普通钱包地址在曲线上，余额可以是任意值。
func rentBound(addr pda.Address, acc *Account) bool {
	return len(acc.Data) > 0 || !acc.IsSystemOwned() || !pda.IsOnCurve(addr[:])
}

// checkRentTransition 受约束账户的余额只能是 0、达到门槛，或者原本就低于门槛且没有增加
func (r *systemRuntime) checkRentTransition(addr pda.Address, acc *Account, post uint64) error {
	if !rentBound(addr, acc) {
		return nil
	}
	pre := acc.Lamports
	floor := r.rent.MinimumBalance(uint64(len(acc.Data)))
	if post == 0 || post >= floor {
		return nil
	}
	if pre > 0 && pre < floor && post <= pre {
		return nil
	}
	return ErrBelowMinimumBalance.Withf("%s would hold %d, minimum %d", addr, post, floor)
}

func (r *systemRuntime) CreateAccount(payer, addr pda.Address, space uint64, owner pda.Address, signer SigningCapability) error {
	if !r.IsSigner(payer) {
		return ErrUnauthorized.Withf("payer %s did not sign", payer)
	}
	if err := signer.verify(r.programID, addr); err != nil {
		return err
	}

	existing, ok, err := GetAccount(r.sv, addr)
	if err != nil {
		return err
	}
	var funded uint64
	if ok {
		// 只允许“有人提前往地址里打了钱”的情况，已分配或已转移所有权的都算占用
		if len(existing.Data) > 0 || !existing.IsSystemOwned() {
			return ErrAlreadyInitialized.Withf("%s", addr)
		}
		funded = existing.Lamports
	}

	required := r.rent.MinimumBalance(space)
	if funded < required {
		if err := r.move(payer, addr, required-funded); err != nil {
			return err
		}
	}

	acc, ok, err := GetAccount(r.sv, addr)
	if err != nil {
		return err
	}
	if !ok {
		acc = &Account{}
	}
	acc.Owner = owner
	acc.Data = make([]byte, space)
	SetAccount(r.sv, addr, acc)
	return nil
}

func (r *systemRuntime) WriteData(addr pda.Address, data []byte) error {
	acc, ok, err := GetAccount(r.sv, addr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound.Withf("%s", addr)
	}
	if acc.Owner != r.programID {
		return ErrInvalidOwner.Withf("%s is owned by %s", addr, acc.Owner)
	}
	if len(data) != len(acc.Data) {
		return fmt.Errorf("write %d bytes into %d-byte account %s", len(data), len(acc.Data), addr)
	}
	acc.Data = append([]byte(nil), data...)
	SetAccount(r.sv, addr, acc)
	return nil
}

func (r *systemRuntime) CloseAccount(addr, beneficiary pda.Address) error {
	if addr == beneficiary {
		return fmt.Errorf("close %s into itself", addr)
	}
	acc, ok, err := GetAccount(r.sv, addr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound.Withf("%s", addr)
	}
	if acc.Owner != r.programID {
		return ErrInvalidOwner.Withf("%s is owned by %s", addr, acc.Owner)
	}

	dst, ok, err := GetAccount(r.sv, beneficiary)
	if err != nil {
		return err
	}
	if !ok {
		dst = &Account{Owner: pda.SystemProgramID}
	}
	newDst, err := SafeAdd(dst.Lamports, acc.Lamports)
	if err != nil {
		return fmt.Errorf("credit %s: %w", beneficiary, err)
	}
	if err := r.checkRentTransition(beneficiary, dst, newDst); err != nil {
		return err
	}
	dst.Lamports = newDst
	SetAccount(r.sv, beneficiary, dst)
	SetAccount(r.sv, addr, nil)
	return nil
}

func (r *systemRuntime) Log(format string, args ...interface{}) {
	r.logs = append(r.logs, fmt.Sprintf(format, args...))
}

func (r *systemRuntime) Logs() []string {
	out := make([]string, len(r.logs))
	copy(out, r.logs)
	return out
}

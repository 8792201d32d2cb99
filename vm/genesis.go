package vm

import (
	"fmt"

	"pdavault/config"
	"pdavault/keys"
	"pdavault/logs"
	"pdavault/pda"
)

// ApplyGenesis 只在空库第一次启动时给配置里的地址发放初始 lamports。
// 返回 false 表示之前已经执行过。
func (x *Executor) ApplyGenesis(accounts []config.GenesisAccount) (bool, error) {
	x.commitMu.Lock()
	defer x.commitMu.Unlock()

	done, err := x.DB.Get(keys.KeyGenesisApplied())
	if err != nil {
		return false, err
	}
	if done != nil {
		return false, nil
	}

	sv := x.readView()
	for i, g := range accounts {
		addr, err := pda.ParseAddress(g.Address)
		if err != nil {
			return false, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		acc, ok, err := GetAccount(sv, addr)
		if err != nil {
			return false, err
		}
		if !ok {
			acc = &Account{Owner: pda.SystemProgramID}
		}
		if acc.Lamports, err = SafeAdd(acc.Lamports, g.Lamports); err != nil {
			return false, fmt.Errorf("genesis[%d] %s: %w", i, addr, err)
		}
		SetAccount(sv, addr, acc)
	}
	sv.Set(keys.KeyGenesisApplied(), []byte("1"))
	sv.Set(keys.KeyProgramID(), []byte(x.programID.String()))

	for _, w := range sv.Diff() {
		if w.Del {
			x.DB.EnqueueDel(w.Key)
		} else {
			x.DB.EnqueueSet(w.Key, string(w.Value))
		}
	}
	if err := x.DB.ForceFlush(); err != nil {
		return false, err
	}
	x.programBound.Store(true)
	logs.Info("[VM] genesis applied: %d accounts", len(accounts))
	return true, nil
}

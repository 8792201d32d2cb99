package handlers

import (
	"errors"
	"net/http"

	"pdavault/pda"
)

// AccountView 账户查询结果
type AccountView struct {
	Address  pda.Address `json:"address"`
	Exists   bool        `json:"exists"`
	Lamports uint64      `json:"lamports"`
	SOL      string      `json:"sol"`
	Owner    pda.Address `json:"owner"`
	DataLen  int         `json:"data_len"`
}

// VaultView 金库查询结果
type VaultView struct {
	Owner             pda.Address `json:"owner"`
	State             pda.Address `json:"state"`
	StateBump         uint8       `json:"state_bump"`
	Vault             pda.Address `json:"vault"`
	VaultBump         uint8       `json:"vault_bump"`
	Initialized       bool        `json:"initialized"`
	VaultBalance      uint64      `json:"vault_balance"`
	VaultSOL          string      `json:"vault_sol"`
	RentExemptMinimum uint64      `json:"rent_exempt_minimum"`
}

func parseAddressParam(r *http.Request, name string) (pda.Address, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return pda.Address{}, errors.New(name + " is required")
	}
	return pda.ParseAddress(raw)
}

// HandleGetAccount GET /account?address=
func (hm *HandlerManager) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddressParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	acc, ok, err := hm.executor.QueryAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	view := AccountView{Address: addr, Exists: ok, SOL: lamportsToSOL(0)}
	if ok {
		view.Lamports = acc.Lamports
		view.SOL = lamportsToSOL(acc.Lamports)
		view.Owner = acc.Owner
		view.DataLen = len(acc.Data)
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleGetVault GET /vault?owner=
func (hm *HandlerManager) HandleGetVault(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddressParam(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	info, err := hm.executor.QueryVault(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, VaultView{
		Owner:             info.Owner,
		State:             info.State,
		StateBump:         info.StateBump,
		Vault:             info.Vault,
		VaultBump:         info.VaultBump,
		Initialized:       info.Initialized,
		VaultBalance:      info.VaultBalance,
		VaultSOL:          lamportsToSOL(info.VaultBalance),
		RentExemptMinimum: info.RentExemptMinimum,
	})
}

// OwnerTxsView owner 的交易历史
type OwnerTxsView struct {
	Owner pda.Address `json:"owner"`
	TxIDs []string    `json:"tx_ids"`
}

// HandleOwnerTxs GET /owner/txs?owner=，按提交顺序
func (hm *HandlerManager) HandleOwnerTxs(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddressParam(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ids, err := hm.executor.OwnerTxIDs(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, OwnerTxsView{Owner: owner, TxIDs: ids})
}

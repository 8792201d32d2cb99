package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"pdavault/types"
	"pdavault/vm"
)

// HandleTx 处理交易提交：同步执行，返回回执
func (hm *HandlerManager) HandleTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, errors.New("POST only"))
		return
	}

	var tx types.VaultTx
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, hm.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid tx json: %w", err))
		return
	}

	rc, err := hm.executor.ExecuteTx(&tx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rc)
	case rc != nil:
		// 业务失败：回执照常返回
		writeJSON(w, http.StatusUnprocessableEntity, rc)
	case errors.Is(err, vm.ErrDuplicateTx):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

// HandleGetReceipt GET /receipt?txid=
func (hm *HandlerManager) HandleGetReceipt(w http.ResponseWriter, r *http.Request) {
	txID := r.URL.Query().Get("txid")
	if txID == "" {
		writeError(w, http.StatusBadRequest, errors.New("txid is required"))
		return
	}
	rc, ok, err := hm.executor.GetReceipt(txID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no receipt for %s", txID))
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// maxBatchTxs 单次批量提交的交易上限
const maxBatchTxs = 256

// BatchItem 批量提交中单笔交易的结果，顺序与请求一致
type BatchItem struct {
	TxID    string      `json:"tx_id"`
	Receipt *vm.Receipt `json:"receipt,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    uint32      `json:"code,omitempty"`
}

// HandleTxBatch POST /tx/batch：按 owner 分片并行执行，同一 owner 保持顺序
func (hm *HandlerManager) HandleTxBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, errors.New("POST only"))
		return
	}

	var txs []*types.VaultTx
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, hm.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&txs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid batch json: %w", err))
		return
	}
	if len(txs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("empty batch"))
		return
	}
	if len(txs) > maxBatchTxs {
		writeError(w, http.StatusBadRequest, fmt.Errorf("batch of %d exceeds limit %d", len(txs), maxBatchTxs))
		return
	}

	results := hm.executor.ExecuteBatch(txs)
	items := make([]BatchItem, len(results))
	for i, res := range results {
		if txs[i] != nil {
			items[i].TxID = txs[i].TxID
		}
		items[i].Receipt = res.Receipt
		if res.Err != nil {
			items[i].Error = res.Err.Error()
			if ve, ok := vm.AsVaultError(res.Err); ok {
				items[i].Code = uint32(ve.Code)
			}
		}
	}
	writeJSON(w, http.StatusOK, items)
}

// TxStatusResponse 交易状态
type TxStatusResponse struct {
	TxID   string `json:"tx_id"`
	Status string `json:"status"` // PENDING / SUCCEED / FAILED
}

// HandleTxStatus GET /tx/status?txid=
func (hm *HandlerManager) HandleTxStatus(w http.ResponseWriter, r *http.Request) {
	txID := r.URL.Query().Get("txid")
	if txID == "" {
		writeError(w, http.StatusBadRequest, errors.New("txid is required"))
		return
	}
	status, err := hm.executor.GetTransactionStatus(txID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, TxStatusResponse{TxID: txID, Status: status})
}

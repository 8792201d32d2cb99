package handlers

import (
	"net/http"

	"pdavault/db"
	"pdavault/stats"
	"pdavault/vm"
)

// StatusResponse 节点状态
type StatusResponse struct {
	Status         string         `json:"status"`
	ProgramID      string         `json:"program_id"`
	TLSFingerprint string         `json:"tls_fingerprint,omitempty"`
	Executor       vm.ExecStats   `json:"executor"`
	API            stats.Snapshot `json:"api"`
	DB             *db.WriteStats `json:"db,omitempty"`
}

// HandleStatus 处理状态查询
func (hm *HandlerManager) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:    "ok",
		ProgramID: hm.executor.ProgramID().String(),
		Executor:  hm.executor.Stats(),
		API:       hm.Stats.Snapshot(),
	}
	if fp, ok := hm.tlsFingerprint.Load().(string); ok {
		resp.TLSFingerprint = fp
	}
	if hm.dbManager != nil {
		ws := hm.dbManager.WriteStats()
		resp.DB = &ws
	}
	writeJSON(w, http.StatusOK, resp)
}

package api

const (
	postOperationMaxSize = 64 * 1024       // 64 KiB
	postSyncMaxSize      = 8 * 1024 * 1024 // 8 MiB, whole-board snapshots
	postSessionMaxSize   = 16 * 1024
)

// POST /api/tasks/op, /api/tasks/sync and /api/agent-status response body
type operationResponse struct {
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

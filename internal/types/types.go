package types

import "time"

// Status is the readiness of a store as observed on the cluster.
type Status string

const (
	StatusProvisioning Status = "Provisioning"
	StatusReady        Status = "Ready"
)

// Store is the client-facing view of a tenant deployment. It is recomputed
// from cluster state on every listing and never persisted.
type Store struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// Action names a lifecycle event recorded in the audit log.
type Action string

const (
	ActionCreateStart       Action = "STORE_CREATE_START"
	ActionCreateDuplicate   Action = "STORE_CREATE_DUPLICATE"
	ActionCreateSuccess     Action = "STORE_CREATE_SUCCESS"
	ActionCreateFailed      Action = "STORE_CREATE_FAILED"
	ActionDeleteStart       Action = "STORE_DELETE_START"
	ActionDeleteSuccess     Action = "STORE_DELETE_SUCCESS"
	ActionDeleteFailed      Action = "STORE_DELETE_FAILED"
	ActionRateLimitExceeded Action = "RATE_LIMIT_EXCEEDED"
	ActionStoreLimitReached Action = "STORE_LIMIT_EXCEEDED"
	ActionOrchestratorStart Action = "ORCHESTRATOR_START"
)

// Actions lists the full audit taxonomy.
var Actions = []Action{
	ActionCreateStart,
	ActionCreateDuplicate,
	ActionCreateSuccess,
	ActionCreateFailed,
	ActionDeleteStart,
	ActionDeleteSuccess,
	ActionDeleteFailed,
	ActionRateLimitExceeded,
	ActionStoreLimitReached,
	ActionOrchestratorStart,
}

// Valid reports whether a is part of the audit taxonomy.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    Action            `json:"action"`
	Details   map[string]string `json:"details,omitempty"`
}

// Stats is a point-in-time copy of the lifecycle counters.
type Stats struct {
	Created  int64 `json:"created"`
	Deleted  int64 `json:"deleted"`
	Failures int64 `json:"failures"`
}

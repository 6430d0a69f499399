package aicore

// PlanStateVersion is the supported checkpoint schema version.
const PlanStateVersion = 1

// PlanState is the transport envelope a plan is checkpointed inside.
// The embedded plan document is stored as-is: for a failed_normalize
// turn it is a diagnostic document, not a normalized Plan.
type PlanState struct {
	SchemaVersion  int            `json:"schema_version"`
	PlanID         string         `json:"plan_id"`
	Goal           string         `json:"goal"`
	CreatedUTC     string         `json:"created_utc"`
	UpdatedUTC     string         `json:"updated_utc"`
	Status         string         `json:"status"`
	Cursors        map[string]any `json:"cursors"`
	ToolResultsRef string         `json:"tool_results_ref,omitempty"`
	Plan           map[string]any `json:"plan"`
}

// SaveReceipt reports a completed checkpoint write.
type SaveReceipt struct {
	Path       string `json:"path"`
	Bytes      int    `json:"bytes"`
	UpdatedUTC string `json:"updated_utc"`
}

// CheckpointStore persists plan states atomically, one file per plan.
// Implemented by the checkpoint package.
type CheckpointStore interface {
	// Wrap builds a validated state envelope around a plan document.
	Wrap(plan map[string]any, status string, cursors map[string]any) (*PlanState, error)
	// Save writes the state atomically, refreshing updated_utc.
	Save(state *PlanState) (SaveReceipt, error)
	// Load reads and validates the state for planID.
	Load(planID string) (*PlanState, error)
	Exists(planID string) bool
	Delete(planID string) error
}

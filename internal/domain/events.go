package domain

import "time"

// MutationKind names an administrative change that can stale cached reads.
type MutationKind string

const (
	MutationPerformanceCleared MutationKind = "performance_cleared"
	MutationRiderUpserted      MutationKind = "rider_upserted"
	MutationRiderUnassigned    MutationKind = "rider_unassigned"
	MutationSupervisorUpserted MutationKind = "supervisor_upserted"
	MutationSupervisorDeleted  MutationKind = "supervisor_deleted"
	MutationDebtsImported      MutationKind = "debts_imported"
	MutationAdvancesImported   MutationKind = "advances_imported"
	MutationCompensationSet    MutationKind = "compensation_set"
	MutationSettingsSet        MutationKind = "settings_set"
)

// MutationEvent is handed to the invalidation coordinator after a write.
// SupervisorCodes lists every supervisor whose view the change touches.
type MutationEvent struct {
	ID              string       `json:"id"`
	Kind            MutationKind `json:"kind"`
	SupervisorCodes []string     `json:"supervisorCodes,omitempty"`
	OccurredAt      time.Time    `json:"occurredAt"`
}

package mohs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository hands out tenant-bound stores. There is no way to reach case
// data without first binding a tenant.
type Repository interface {
	ForTenant(tenantID string) (Store, error)
}

// Store is the persistence surface for one tenant. Every method is scoped to
// the tenant the store was bound to.
//
// Transactions that lock more than one row lock the case before any of its
// stages.
type Store interface {
	TenantID() string

	// RunInTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	// RunInSnapshot runs fn in a read-only transaction whose reads all see
	// the same committed state.
	RunInSnapshot(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Cases
	CreateCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, id uuid.UUID) (*Case, error)
	// GetCaseForUpdate locks the case row for the rest of the transaction.
	GetCaseForUpdate(ctx context.Context, id uuid.UUID) (*Case, error)
	UpdateCaseWorkflow(ctx context.Context, c *Case) error
	UpdateCaseClosure(ctx context.Context, c *Case) error
	SoftDeleteCase(ctx context.Context, id uuid.UUID, actor string) error
	ListCases(ctx context.Context, f CaseFilter, limit, offset int) ([]*Case, int, error)

	// Stages
	CreateStage(ctx context.Context, s *Stage) error
	GetStage(ctx context.Context, id uuid.UUID) (*Stage, error)
	GetStageForUpdate(ctx context.Context, id uuid.UUID) (*Stage, error)
	ListStages(ctx context.Context, caseID uuid.UUID) ([]*Stage, error)
	UpdateStageMargins(ctx context.Context, s *Stage) error

	// Blocks
	UpsertBlock(ctx context.Context, b *Block) error
	ListBlocks(ctx context.Context, stageID uuid.UUID) ([]*Block, error)
	ListBlocksByCase(ctx context.Context, caseID uuid.UUID) ([]*Block, error)

	// Closures
	CreateClosure(ctx context.Context, cl *Closure) error
	ListClosures(ctx context.Context, caseID uuid.UUID) ([]*Closure, error)

	// Maps
	CreateMap(ctx context.Context, m *Map) error
	LatestMapVersion(ctx context.Context, caseID uuid.UUID, mapType string) (int, error)
	ListMaps(ctx context.Context, caseID uuid.UUID) ([]*Map, error)

	// Reference and host data
	GetParticipants(ctx context.Context, patientID, surgeonID uuid.UUID) (patient, surgeon *PersonRef, err error)
	CPTDescriptions(ctx context.Context, codes []string) (map[string]string, error)

	// Analytics
	StatsRows(ctx context.Context, f StatsFilter) ([]StatsRow, error)
}

// StatsRow is the per-case projection the statistics are computed from.
type StatsRow struct {
	Status             CaseStatus
	TumorType          *string
	TumorLocation      string
	ClosureType        *string
	TotalStages        int
	StartTime          *time.Time
	EndTime            *time.Time
	FirstStageNegative bool
}

// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from the spreadsheet store, the configuration store and the cache backend.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/sheet"
)

// RowsProvider reads and writes whole logical tables of the spreadsheet
// store. Row 0 is the header; cells are untyped.
//
// ReadRows returns *domain.ErrTableMissing when the table does not exist.
type RowsProvider interface {
	ReadRows(ctx context.Context, table sheet.Table) ([][]any, error)
	WriteRows(ctx context.Context, table sheet.Table, rows [][]any) error
	AppendRows(ctx context.Context, table sheet.Table, rows [][]any) error
	Name() string
}

// ConfigStore holds the administrator-maintained compensation configuration.
// Every getter returns defaults (zero values, legacy model) for unknown
// supervisors instead of a not-found error.
type ConfigStore interface {
	GetSalaryConfig(ctx context.Context, supervisorCode string) (*domain.SalaryConfig, error)
	SaveSalaryConfig(ctx context.Context, cfg *domain.SalaryConfig) error

	GetEquipmentLimits(ctx context.Context, supervisorCode string) (domain.EquipmentLimits, error)
	SaveEquipmentLimits(ctx context.Context, supervisorCode string, limits domain.EquipmentLimits) error

	GetEquipmentPrices(ctx context.Context) (domain.EquipmentPrices, error)
	SaveEquipmentPrices(ctx context.Context, prices domain.EquipmentPrices) error

	GetSettings(ctx context.Context) (*domain.PolicySettings, error)
	SaveSettings(ctx context.Context, s *domain.PolicySettings) error

	DeleteSupervisorConfig(ctx context.Context, supervisorCode string) error
	Ping(ctx context.Context) error
}

// Cache is the record cache: byte values with a per-key TTL, lazily expired.
// Implementations are safe for concurrent use; Set is last-write-wins.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
	Keys(ctx context.Context) []string
}

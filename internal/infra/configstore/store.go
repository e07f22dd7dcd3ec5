// Package configstore persists the administrator-maintained compensation
// configuration (salary models, equipment limits and prices, policy
// settings) with gorm over sqlite or postgres.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/boddenberg/fleetpay-go/internal/domain"
)

var tracer = otel.Tracer("configstore")

const settingsRowID = 1

type salaryConfigRow struct {
	SupervisorCode    string          `gorm:"primaryKey;size:64"`
	Model             string          `gorm:"size:16;not null"`
	Amount            decimal.Decimal `gorm:"type:text;not null"`
	CommissionFormula string          `gorm:"type:text"`
	Bonus             decimal.Decimal `gorm:"type:text;not null"`
	UpdatedAt         time.Time
}

func (salaryConfigRow) TableName() string { return "salary_configs" }

type equipmentLimitRow struct {
	SupervisorCode string `gorm:"primaryKey;size:64"`
	Kind           string `gorm:"primaryKey;size:32"`
	Quantity       int    `gorm:"not null"`
	UpdatedAt      time.Time
}

func (equipmentLimitRow) TableName() string { return "equipment_limits" }

type equipmentPriceRow struct {
	Kind      string          `gorm:"primaryKey;size:32"`
	Price     decimal.Decimal `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (equipmentPriceRow) TableName() string { return "equipment_prices" }

type settingsRow struct {
	ID                        uint            `gorm:"primaryKey"`
	SecurityCost              decimal.Decimal `gorm:"type:text;not null"`
	LegacyOrderRate           decimal.Decimal `gorm:"type:text;not null"`
	LegacyBonusMultiplier     decimal.Decimal `gorm:"type:text;not null"`
	LegacyAcceptanceThreshold float64         `gorm:"not null"`
	UpdatedAt                 time.Time
}

func (settingsRow) TableName() string { return "policy_settings" }

// Store implements port.ConfigStore.
type Store struct {
	db       *gorm.DB
	defaults domain.PolicySettings
	logger   *zap.Logger
}

// Open connects with the named driver ("sqlite" or "postgres") and migrates
// the schema.
func Open(driver, dsn string, defaults domain.PolicySettings, logger *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, &domain.ErrConfig{Key: "CONFIG_DB_DRIVER", Err: fmt.Errorf("unsupported driver %q", driver)}
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening config store: %w", err)
	}
	return New(db, defaults, logger)
}

// New wraps an open connection and migrates the schema.
func New(db *gorm.DB, defaults domain.PolicySettings, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&salaryConfigRow{}, &equipmentLimitRow{}, &equipmentPriceRow{}, &settingsRow{}); err != nil {
		return nil, fmt.Errorf("migrating config store: %w", err)
	}
	return &Store{db: db, defaults: defaults, logger: logger}, nil
}

// GetSalaryConfig returns the supervisor's configuration, or a legacy
// default with zero amounts when none was saved.
func (s *Store) GetSalaryConfig(ctx context.Context, supervisorCode string) (*domain.SalaryConfig, error) {
	ctx, span := tracer.Start(ctx, "ConfigStore.GetSalaryConfig")
	defer span.End()
	span.SetAttributes(attribute.String("supervisor.code", supervisorCode))

	var row salaryConfigRow
	err := s.db.WithContext(ctx).Where("supervisor_code = ?", supervisorCode).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.SalaryConfig{
			SupervisorCode: supervisorCode,
			Model:          domain.ModelLegacy,
			Amount:         decimal.Zero,
			Bonus:          decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, s.fail("get salary config", err)
	}

	return &domain.SalaryConfig{
		SupervisorCode:    row.SupervisorCode,
		Model:             domain.ParseCompensationModel(row.Model),
		Amount:            row.Amount,
		CommissionFormula: row.CommissionFormula,
		Bonus:             row.Bonus,
	}, nil
}

// SaveSalaryConfig upserts the supervisor's configuration.
func (s *Store) SaveSalaryConfig(ctx context.Context, cfg *domain.SalaryConfig) error {
	ctx, span := tracer.Start(ctx, "ConfigStore.SaveSalaryConfig")
	defer span.End()
	span.SetAttributes(attribute.String("supervisor.code", cfg.SupervisorCode))

	row := salaryConfigRow{
		SupervisorCode:    cfg.SupervisorCode,
		Model:             string(cfg.Model),
		Amount:            cfg.Amount,
		CommissionFormula: cfg.CommissionFormula,
		Bonus:             cfg.Bonus,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return s.fail("save salary config", err)
	}
	return nil
}

// GetEquipmentLimits returns every kind, zero when unset.
func (s *Store) GetEquipmentLimits(ctx context.Context, supervisorCode string) (domain.EquipmentLimits, error) {
	ctx, span := tracer.Start(ctx, "ConfigStore.GetEquipmentLimits")
	defer span.End()

	var rows []equipmentLimitRow
	if err := s.db.WithContext(ctx).Where("supervisor_code = ?", supervisorCode).Find(&rows).Error; err != nil {
		return nil, s.fail("get equipment limits", err)
	}

	limits := make(domain.EquipmentLimits, len(rows))
	for _, r := range rows {
		if kind, ok := domain.ParseEquipmentKind(r.Kind); ok {
			limits[kind] = r.Quantity
		}
	}
	return limits.Normalized(), nil
}

// SaveEquipmentLimits replaces the supervisor's limits.
func (s *Store) SaveEquipmentLimits(ctx context.Context, supervisorCode string, limits domain.EquipmentLimits) error {
	ctx, span := tracer.Start(ctx, "ConfigStore.SaveEquipmentLimits")
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("supervisor_code = ?", supervisorCode).Delete(&equipmentLimitRow{}).Error; err != nil {
			return err
		}
		rows := make([]equipmentLimitRow, 0, len(limits))
		for _, kind := range domain.EquipmentKinds {
			if q, ok := limits[kind]; ok {
				rows = append(rows, equipmentLimitRow{SupervisorCode: supervisorCode, Kind: string(kind), Quantity: q})
			}
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return s.fail("save equipment limits", err)
	}
	return nil
}

// GetEquipmentPrices returns the saved unit prices.
func (s *Store) GetEquipmentPrices(ctx context.Context) (domain.EquipmentPrices, error) {
	ctx, span := tracer.Start(ctx, "ConfigStore.GetEquipmentPrices")
	defer span.End()

	var rows []equipmentPriceRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, s.fail("get equipment prices", err)
	}

	prices := make(domain.EquipmentPrices, len(rows))
	for _, r := range rows {
		if kind, ok := domain.ParseEquipmentKind(r.Kind); ok {
			prices[kind] = r.Price
		}
	}
	return prices, nil
}

// SaveEquipmentPrices upserts the given kinds; other kinds keep their price.
func (s *Store) SaveEquipmentPrices(ctx context.Context, prices domain.EquipmentPrices) error {
	ctx, span := tracer.Start(ctx, "ConfigStore.SaveEquipmentPrices")
	defer span.End()

	if len(prices) == 0 {
		return nil
	}
	rows := make([]equipmentPriceRow, 0, len(prices))
	for _, kind := range domain.EquipmentKinds {
		if p, ok := prices[kind]; ok {
			rows = append(rows, equipmentPriceRow{Kind: string(kind), Price: p})
		}
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		return s.fail("save equipment prices", err)
	}
	return nil
}

// GetSettings returns the saved policy, or the configured defaults.
func (s *Store) GetSettings(ctx context.Context) (*domain.PolicySettings, error) {
	ctx, span := tracer.Start(ctx, "ConfigStore.GetSettings")
	defer span.End()

	var row settingsRow
	err := s.db.WithContext(ctx).Where("id = ?", settingsRowID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		d := s.defaults
		return &d, nil
	}
	if err != nil {
		return nil, s.fail("get settings", err)
	}
	return &domain.PolicySettings{
		SecurityCost:              row.SecurityCost,
		LegacyOrderRate:           row.LegacyOrderRate,
		LegacyBonusMultiplier:     row.LegacyBonusMultiplier,
		LegacyAcceptanceThreshold: row.LegacyAcceptanceThreshold,
	}, nil
}

// SaveSettings replaces the policy.
func (s *Store) SaveSettings(ctx context.Context, p *domain.PolicySettings) error {
	ctx, span := tracer.Start(ctx, "ConfigStore.SaveSettings")
	defer span.End()

	row := settingsRow{
		ID:                        settingsRowID,
		SecurityCost:              p.SecurityCost,
		LegacyOrderRate:           p.LegacyOrderRate,
		LegacyBonusMultiplier:     p.LegacyBonusMultiplier,
		LegacyAcceptanceThreshold: p.LegacyAcceptanceThreshold,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return s.fail("save settings", err)
	}
	return nil
}

// DeleteSupervisorConfig drops the salary config and limits of a supervisor.
func (s *Store) DeleteSupervisorConfig(ctx context.Context, supervisorCode string) error {
	ctx, span := tracer.Start(ctx, "ConfigStore.DeleteSupervisorConfig")
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("supervisor_code = ?", supervisorCode).Delete(&salaryConfigRow{}).Error; err != nil {
			return err
		}
		return tx.Where("supervisor_code = ?", supervisorCode).Delete(&equipmentLimitRow{}).Error
	})
	if err != nil {
		return s.fail("delete supervisor config", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) fail(op string, err error) error {
	s.logger.Error("configstore: "+op+" failed", zap.Error(err))
	return &domain.ErrExternalService{Service: "configstore", Err: err}
}

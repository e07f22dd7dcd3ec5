package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ============================================================
// Compensation models
// ============================================================

// CompensationModel selects how base pay is derived for a supervisor.
type CompensationModel string

const (
	ModelFixed      CompensationModel = "fixed"
	ModelCommission CompensationModel = "commission"
	ModelCustom     CompensationModel = "custom"
	ModelLegacy     CompensationModel = "legacy"
)

// ParseCompensationModel maps a stored tag to a model. Unknown or empty
// tags fall back to legacy.
func ParseCompensationModel(tag string) CompensationModel {
	switch CompensationModel(strings.ToLower(strings.TrimSpace(tag))) {
	case ModelFixed:
		return ModelFixed
	case ModelCommission:
		return ModelCommission
	case ModelCustom:
		return ModelCustom
	default:
		return ModelLegacy
	}
}

// IsKnown reports whether the tag names one of the four models.
func (m CompensationModel) IsKnown() bool {
	switch m {
	case ModelFixed, ModelCommission, ModelCustom, ModelLegacy:
		return true
	}
	return false
}

// SalaryConfig is the per-supervisor compensation configuration.
type SalaryConfig struct {
	SupervisorCode    string            `json:"supervisorCode"`
	Model             CompensationModel `json:"salaryType"`
	Amount            decimal.Decimal   `json:"salaryAmount"`
	CommissionFormula string            `json:"commissionFormula,omitempty"`
	Bonus             decimal.Decimal   `json:"bonus"`
}

// PolicySettings holds figures shared by every supervisor.
type PolicySettings struct {
	SecurityCost decimal.Decimal `json:"securityCost"`

	// Frozen constants of the legacy model.
	LegacyOrderRate           decimal.Decimal `json:"legacyOrderRate"`
	LegacyBonusMultiplier     decimal.Decimal `json:"legacyBonusMultiplier"`
	LegacyAcceptanceThreshold float64         `json:"legacyAcceptanceThreshold"`
}

// ============================================================
// Equipment
// ============================================================

// EquipmentKind enumerates deductible equipment.
type EquipmentKind string

const (
	EquipmentMotorcycleBox EquipmentKind = "motorcycle_box"
	EquipmentBicycleBox    EquipmentKind = "bicycle_box"
	EquipmentTShirt        EquipmentKind = "tshirt"
	EquipmentJacket        EquipmentKind = "jacket"
	EquipmentHelmet        EquipmentKind = "helmet"
)

// EquipmentKinds lists every kind in a stable order.
var EquipmentKinds = []EquipmentKind{
	EquipmentMotorcycleBox,
	EquipmentBicycleBox,
	EquipmentTShirt,
	EquipmentJacket,
	EquipmentHelmet,
}

// ParseEquipmentKind accepts the canonical names plus a few spellings used in
// the admin sheet.
func ParseEquipmentKind(s string) (EquipmentKind, bool) {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.NewReplacer("-", "_", " ", "_").Replace(k)
	switch k {
	case "motorcycle_box", "motorbike_box", "motor_box":
		return EquipmentMotorcycleBox, true
	case "bicycle_box", "bike_box":
		return EquipmentBicycleBox, true
	case "tshirt", "t_shirt", "shirt":
		return EquipmentTShirt, true
	case "jacket":
		return EquipmentJacket, true
	case "helmet":
		return EquipmentHelmet, true
	}
	return "", false
}

// EquipmentLimits caps deductible quantities per kind. Missing kinds read as zero.
type EquipmentLimits map[EquipmentKind]int

// Limit returns the configured cap for kind, never negative.
func (l EquipmentLimits) Limit(kind EquipmentKind) int {
	if v := l[kind]; v > 0 {
		return v
	}
	return 0
}

// Normalized returns a copy holding every kind, clamped to >= 0.
func (l EquipmentLimits) Normalized() EquipmentLimits {
	out := make(EquipmentLimits, len(EquipmentKinds))
	for _, k := range EquipmentKinds {
		out[k] = l.Limit(k)
	}
	return out
}

// EquipmentPrices holds the unit price per kind. Missing kinds read as zero.
type EquipmentPrices map[EquipmentKind]decimal.Decimal

// Price returns the unit price for kind.
func (p EquipmentPrices) Price(kind EquipmentKind) decimal.Decimal {
	if v, ok := p[kind]; ok {
		return v
	}
	return decimal.Zero
}

// EquipmentDeduction details one line of the equipment cost.
type EquipmentDeduction struct {
	Kind      EquipmentKind   `json:"kind"`
	Requested int             `json:"requested"`
	Limit     int             `json:"limit"`
	Deducted  int             `json:"deducted"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Cost      decimal.Decimal `json:"cost"`
	Capped    bool            `json:"capped"`
}

// ============================================================
// Salary breakdown
// ============================================================

// SalaryRequest is the input of a compensation query.
type SalaryRequest struct {
	SupervisorCode string
	StartDate      string
	EndDate        string
	Equipment      map[EquipmentKind]int
}

// SalaryBreakdown is computed on demand and never persisted. Identical
// inputs over an unchanged snapshot produce identical values.
type SalaryBreakdown struct {
	SupervisorCode    string            `json:"supervisorCode"`
	StartDate         string            `json:"startDate"`
	EndDate           string            `json:"endDate"`
	CompensationModel CompensationModel `json:"compensationModel"`
	CommissionRate    decimal.Decimal   `json:"commissionRate"`
	Multiplier        decimal.Decimal   `json:"multiplier"`

	BaseSalary  decimal.Decimal `json:"baseSalary"`
	Commission  decimal.Decimal `json:"commission"`
	Bonus       decimal.Decimal `json:"bonus"`
	TotalSalary decimal.Decimal `json:"totalSalary"`

	TotalOrders int     `json:"totalOrders"`
	TotalHours  float64 `json:"totalHours"`
	RidersCount int     `json:"ridersCount"`

	Debts         decimal.Decimal      `json:"debts"`
	Advances      decimal.Decimal      `json:"advances"`
	SecurityCost  decimal.Decimal      `json:"securityCost"`
	EquipmentCost decimal.Decimal      `json:"equipmentCost"`
	Equipment     []EquipmentDeduction `json:"equipment"`
	Deductions    decimal.Decimal      `json:"deductions"`

	NetBeforeClamp decimal.Decimal `json:"netBeforeClamp"`
	NetSalary      decimal.Decimal `json:"netSalary"`

	Degraded bool     `json:"degraded"`
	Warnings []string `json:"warnings"`
}

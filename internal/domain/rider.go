package domain

import "strings"

// ============================================================
// Riders & Supervisors
// ============================================================

// StatusActive is the canonical rider status. An empty status reads as active.
const StatusActive = "active"

// Rider is a field worker currently assigned to at most one supervisor.
type Rider struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Region         string `json:"region,omitempty"`
	SupervisorCode string `json:"supervisorCode,omitempty"`
	Phone          string `json:"phone,omitempty"`
	JoinDate       string `json:"joinDate,omitempty"` // YYYY-MM-DD when parseable, raw otherwise
	Status         string `json:"status,omitempty"`
}

// IsActive reports whether the rider counts as active.
func (r Rider) IsActive() bool {
	s := strings.TrimSpace(r.Status)
	return s == "" || strings.EqualFold(s, StatusActive)
}

// Supervisor owns a set of riders and is the subject of compensation.
type Supervisor struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// ============================================================
// Daily performance, debts, advances
// ============================================================

// PerformanceRecord is one rider's metrics for one calendar day.
// Wallet carries the debt amount some ingestion sources embed in the row.
type PerformanceRecord struct {
	Date         string  `json:"date"` // canonical YYYY-MM-DD
	RiderID      string  `json:"riderId"`
	RiderName    string  `json:"riderName,omitempty"`
	Hours        float64 `json:"hours"`
	BreakMinutes float64 `json:"breakMinutes"`
	DelayMinutes float64 `json:"delayMinutes"`
	Absence      string  `json:"absence,omitempty"`
	Orders       int     `json:"orders"`
	Acceptance   float64 `json:"acceptance"` // percentage 0-100
	Wallet       float64 `json:"wallet"`
}

// IsAbsent reports whether the absence marker is set.
func (p PerformanceRecord) IsAbsent() bool {
	return strings.TrimSpace(p.Absence) != ""
}

// DebtRecord is an amount owed by a rider, read from the debts sheet.
type DebtRecord struct {
	RiderID string  `json:"riderId"`
	Amount  float64 `json:"amount"`
	Date    string  `json:"date,omitempty"`
	Note    string  `json:"note,omitempty"`
}

// AdvanceRecord is a salary advance paid out to a rider.
type AdvanceRecord struct {
	RiderID string  `json:"riderId"`
	Amount  float64 `json:"amount"`
	Date    string  `json:"date,omitempty"`
	Note    string  `json:"note,omitempty"`
}

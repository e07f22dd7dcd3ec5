package domain

// ============================================================
// Aggregation results
// ============================================================

// PerformanceTotals are per-metric sums over an aggregation window.
type PerformanceTotals struct {
	Orders            int     `json:"orders"`
	Hours             float64 `json:"hours"`
	AcceptanceAverage float64 `json:"acceptanceAverage"`
	AbsenceCount      int     `json:"absenceCount"`
	BreakTotal        float64 `json:"breakTotal"`
	DelayTotal        float64 `json:"delayTotal"`
	WalletTotal       float64 `json:"walletTotal"`
	Records           int     `json:"records"`
	ActiveDays        int     `json:"activeDays"`
}

// RiderPerformance summarizes one rider within the window.
type RiderPerformance struct {
	RiderID           string  `json:"riderId"`
	RiderName         string  `json:"riderName"`
	Orders            int     `json:"orders"`
	Hours             float64 `json:"hours"`
	AcceptanceAverage float64 `json:"acceptanceAverage"`
	AbsenceCount      int     `json:"absenceCount"`
	Days              int     `json:"days"`
}

// PerformanceReport is the scoped, filtered view of one supervisor's riders.
type PerformanceReport struct {
	SupervisorCode string              `json:"supervisorCode"`
	StartDate      string              `json:"startDate"`
	EndDate        string              `json:"endDate"`
	RidersCount    int                 `json:"ridersCount"` // active riders owned now
	Totals         PerformanceTotals   `json:"totals"`
	TopRiders      []RiderPerformance  `json:"topRiders"`
	Riders         []RiderPerformance  `json:"riders"`
	Records        []PerformanceRecord `json:"records"`
	SkippedRows    int                 `json:"skippedRows"`
	Degraded       bool                `json:"degraded"`
	Warnings       []string            `json:"warnings,omitempty"`
}

// RiderDebt is the debt total of one rider.
type RiderDebt struct {
	RiderID   string  `json:"riderId"`
	RiderName string  `json:"riderName"`
	Amount    float64 `json:"amount"`
	Entries   int     `json:"entries"`
}

// DebtReport lists the debts of a supervisor's riders from the debts sheet.
type DebtReport struct {
	SupervisorCode string       `json:"supervisorCode"`
	Total          float64      `json:"total"`
	Riders         []RiderDebt  `json:"riders"`
	Records        []DebtRecord `json:"records"`
	Degraded       bool         `json:"degraded"`
	Warnings       []string     `json:"warnings,omitempty"`
}

// AdvanceReport sums advances of a supervisor's riders within a window.
type AdvanceReport struct {
	SupervisorCode string          `json:"supervisorCode"`
	StartDate      string          `json:"startDate"`
	EndDate        string          `json:"endDate"`
	Total          float64         `json:"total"`
	Records        []AdvanceRecord `json:"records"`
	Degraded       bool            `json:"degraded"`
	Warnings       []string        `json:"warnings,omitempty"`
}

package sheet

import (
	"fmt"

	"github.com/boddenberg/fleetpay-go/internal/dateparse"
	"github.com/boddenberg/fleetpay-go/internal/domain"
)

// RowIssue records a row that was skipped or defaulted during coercion.
// Row is the 1-based sheet row number (the header is row 1).
type RowIssue struct {
	Table  Table  `json:"table"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (i RowIssue) String() string {
	return fmt.Sprintf("%s row %d: %s", i.Table, i.Row, i.Reason)
}

// split separates header from body; an empty table has neither.
func split(rows [][]any) ([]any, [][]any) {
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], rows[1:]
}

// ParseRiders coerces the riders table. A rider ID listed more than once
// resolves to its last row; earlier rows are dropped and reported.
func ParseRiders(rows [][]any) ([]domain.Rider, []RowIssue) {
	header, body := split(rows)
	layout := RidersSchema.Locate(header)

	var issues []RowIssue
	out := make([]domain.Rider, 0, len(body))
	rowOf := make([]int, 0, len(body))
	for i, row := range body {
		if IsBlank(row) {
			continue
		}
		id := String(layout.Cell(row, ColID))
		if id == "" {
			issues = append(issues, RowIssue{Table: TableRiders, Row: i + 2, Reason: "missing rider id"})
			continue
		}
		joined := String(layout.Cell(row, ColJoinDate))
		if d, ok := dateparse.Normalize(layout.Cell(row, ColJoinDate)); ok {
			joined = d
		}
		out = append(out, domain.Rider{
			ID:             id,
			Name:           String(layout.Cell(row, ColName)),
			Region:         String(layout.Cell(row, ColRegion)),
			SupervisorCode: String(layout.Cell(row, ColSupervisor)),
			Phone:          String(layout.Cell(row, ColPhone)),
			JoinDate:       joined,
			Status:         String(layout.Cell(row, ColStatus)),
		})
		rowOf = append(rowOf, i+2)
	}

	last := make(map[string]int, len(out))
	for i, r := range out {
		last[r.ID] = i
	}
	if len(last) == len(out) {
		return out, issues
	}
	kept := out[:0]
	for i, r := range out {
		if w := last[r.ID]; w != i {
			issues = append(issues, RowIssue{
				Table:  TableRiders,
				Row:    rowOf[i],
				Reason: fmt.Sprintf("duplicate rider id %s, row %d wins", r.ID, rowOf[w]),
			})
			continue
		}
		kept = append(kept, r)
	}
	return kept, issues
}

// ParsePerformance coerces the performance table. Rows whose date cannot be
// normalized or that carry no rider id are skipped and reported.
func ParsePerformance(rows [][]any) ([]domain.PerformanceRecord, []RowIssue) {
	header, body := split(rows)
	layout := PerformanceSchema.Locate(header)

	var issues []RowIssue
	out := make([]domain.PerformanceRecord, 0, len(body))
	for i, row := range body {
		if IsBlank(row) {
			continue
		}
		riderID := String(layout.Cell(row, ColRiderID))
		if riderID == "" {
			issues = append(issues, RowIssue{Table: TablePerformance, Row: i + 2, Reason: "missing rider id"})
			continue
		}
		rawDate := layout.Cell(row, ColDate)
		date, ok := dateparse.Normalize(rawDate)
		if !ok {
			issues = append(issues, RowIssue{Table: TablePerformance, Row: i + 2, Reason: fmt.Sprintf("unparseable date %q", String(rawDate))})
			continue
		}
		out = append(out, domain.PerformanceRecord{
			Date:         date,
			RiderID:      riderID,
			RiderName:    String(layout.Cell(row, ColRiderName)),
			Hours:        NonNegative(layout.Cell(row, ColHours)),
			BreakMinutes: Float(layout.Cell(row, ColBreak)),
			DelayMinutes: Float(layout.Cell(row, ColDelay)),
			Absence:      String(layout.Cell(row, ColAbsence)),
			Orders:       Int(layout.Cell(row, ColOrders)),
			Acceptance:   Percent(layout.Cell(row, ColAcceptance)),
			Wallet:       NonNegative(layout.Cell(row, ColWallet)),
		})
	}
	return out, issues
}

// ParseDebts coerces the debts table. The date is optional; an unreadable
// date is dropped but the amount is kept.
func ParseDebts(rows [][]any) ([]domain.DebtRecord, []RowIssue) {
	entries, issues := parseLedger(TableDebts, DebtsSchema, rows)
	out := make([]domain.DebtRecord, len(entries))
	for i, e := range entries {
		out[i] = domain.DebtRecord(e)
	}
	return out, issues
}

// ParseAdvances coerces the advances table.
func ParseAdvances(rows [][]any) ([]domain.AdvanceRecord, []RowIssue) {
	entries, issues := parseLedger(TableAdvances, AdvancesSchema, rows)
	out := make([]domain.AdvanceRecord, len(entries))
	for i, e := range entries {
		out[i] = domain.AdvanceRecord(e)
	}
	return out, issues
}

type ledgerEntry struct {
	RiderID string
	Amount  float64
	Date    string
	Note    string
}

func parseLedger(table Table, schema Schema, rows [][]any) ([]ledgerEntry, []RowIssue) {
	header, body := split(rows)
	layout := schema.Locate(header)

	var issues []RowIssue
	out := make([]ledgerEntry, 0, len(body))
	for i, row := range body {
		if IsBlank(row) {
			continue
		}
		riderID := String(layout.Cell(row, ColRiderID))
		if riderID == "" {
			issues = append(issues, RowIssue{Table: table, Row: i + 2, Reason: "missing rider id"})
			continue
		}
		amount := Float(layout.Cell(row, ColAmount))
		if amount < 0 {
			issues = append(issues, RowIssue{Table: table, Row: i + 2, Reason: "negative amount treated as 0"})
			amount = 0
		}
		date, _ := dateparse.Normalize(layout.Cell(row, ColDate))
		out = append(out, ledgerEntry{
			RiderID: riderID,
			Amount:  amount,
			Date:    date,
			Note:    String(layout.Cell(row, ColNote)),
		})
	}
	return out, issues
}

// ParseSupervisors coerces the supervisors table.
func ParseSupervisors(rows [][]any) ([]domain.Supervisor, []RowIssue) {
	header, body := split(rows)
	layout := SupervisorsSchema.Locate(header)

	var issues []RowIssue
	out := make([]domain.Supervisor, 0, len(body))
	for i, row := range body {
		if IsBlank(row) {
			continue
		}
		code := String(layout.Cell(row, ColCode))
		if code == "" {
			issues = append(issues, RowIssue{Table: TableSupervisors, Row: i + 2, Reason: "missing supervisor code"})
			continue
		}
		out = append(out, domain.Supervisor{
			Code:   code,
			Name:   String(layout.Cell(row, ColName)),
			Region: String(layout.Cell(row, ColRegion)),
			Phone:  String(layout.Cell(row, ColPhone)),
		})
	}
	return out, issues
}

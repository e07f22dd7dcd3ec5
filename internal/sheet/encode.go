package sheet

import "github.com/boddenberg/fleetpay-go/internal/domain"

// Encoders produce whole tables (header first) in canonical column order,
// ready for a rows provider write.

// EncodeRiders renders the riders table.
func EncodeRiders(riders []domain.Rider) [][]any {
	rows := make([][]any, 0, len(riders)+1)
	rows = append(rows, RidersSchema.Header())
	for _, r := range riders {
		rows = append(rows, []any{r.ID, r.Name, r.Region, r.SupervisorCode, r.Phone, r.JoinDate, r.Status})
	}
	return rows
}

// EncodeSupervisors renders the supervisors table.
func EncodeSupervisors(supervisors []domain.Supervisor) [][]any {
	rows := make([][]any, 0, len(supervisors)+1)
	rows = append(rows, SupervisorsSchema.Header())
	for _, s := range supervisors {
		rows = append(rows, []any{s.Code, s.Name, s.Region, s.Phone})
	}
	return rows
}

// EncodeDebts renders debt rows without a header, for appends.
func EncodeDebts(debts []domain.DebtRecord) [][]any {
	rows := make([][]any, 0, len(debts))
	for _, d := range debts {
		rows = append(rows, []any{d.RiderID, d.Amount, d.Date, d.Note})
	}
	return rows
}

// EncodeAdvances renders advance rows without a header, for appends.
func EncodeAdvances(advances []domain.AdvanceRecord) [][]any {
	rows := make([][]any, 0, len(advances))
	for _, a := range advances {
		rows = append(rows, []any{a.RiderID, a.Amount, a.Date, a.Note})
	}
	return rows
}

// HeaderOnly is an emptied table: just the canonical header.
func HeaderOnly(s Schema) [][]any {
	return [][]any{s.Header()}
}

// Package sheet holds the row schema of every logical table in the
// spreadsheet store and the coercion from untyped rows to domain records.
//
// Row 0 of a table is its header. Columns are located by header aliases;
// when a table's key column cannot be found the schema's positional layout
// is used instead.
package sheet

import (
	"strings"
	"unicode"
)

// Table names a logical table (a sheet) in the rows store.
type Table string

const (
	TableRiders      Table = "riders"
	TablePerformance Table = "performance"
	TableDebts       Table = "debts"
	TableAdvances    Table = "advances"
	TableSupervisors Table = "supervisors"
)

// Column names a field of a table.
type Column string

const (
	ColID         Column = "id"
	ColName       Column = "name"
	ColRegion     Column = "region"
	ColSupervisor Column = "supervisor"
	ColPhone      Column = "phone"
	ColJoinDate   Column = "join_date"
	ColStatus     Column = "status"

	ColDate       Column = "date"
	ColRiderID    Column = "rider_id"
	ColRiderName  Column = "rider_name"
	ColHours      Column = "hours"
	ColBreak      Column = "break"
	ColDelay      Column = "delay"
	ColAbsence    Column = "absence"
	ColOrders     Column = "orders"
	ColAcceptance Column = "acceptance"
	ColWallet     Column = "wallet"

	ColAmount Column = "amount"
	ColNote   Column = "note"
	ColCode   Column = "code"
)

// Schema describes one table: its canonical column order (also the
// positional fallback and the write order) and the header aliases.
type Schema struct {
	Table   Table
	Key     Column
	Columns []Column
	Aliases map[Column][]string
}

var idAliases = []string{"id", "rider id", "riderid", "rider code", "code", "رقم المندوب", "كود المندوب", "المعرف"}

// Schemas of the store's tables.
var (
	RidersSchema = Schema{
		Table:   TableRiders,
		Key:     ColID,
		Columns: []Column{ColID, ColName, ColRegion, ColSupervisor, ColPhone, ColJoinDate, ColStatus},
		Aliases: map[Column][]string{
			ColID:         idAliases,
			ColName:       {"name", "rider name", "الاسم", "اسم المندوب"},
			ColRegion:     {"region", "area", "city", "المنطقة"},
			ColSupervisor: {"supervisor", "supervisor code", "supervisor id", "المشرف", "كود المشرف"},
			ColPhone:      {"phone", "mobile", "الجوال", "رقم الجوال"},
			ColJoinDate:   {"join date", "joined", "start date", "تاريخ الانضمام"},
			ColStatus:     {"status", "state", "الحالة"},
		},
	}

	PerformanceSchema = Schema{
		Table:   TablePerformance,
		Key:     ColRiderID,
		Columns: []Column{ColDate, ColRiderID, ColRiderName, ColHours, ColBreak, ColDelay, ColAbsence, ColOrders, ColAcceptance, ColWallet},
		Aliases: map[Column][]string{
			ColDate:       {"date", "day", "التاريخ"},
			ColRiderID:    idAliases,
			ColRiderName:  {"name", "rider name", "الاسم", "اسم المندوب"},
			ColHours:      {"hours", "work hours", "working hours", "ساعات العمل"},
			ColBreak:      {"break", "break time", "break duration", "مدة الاستراحة", "الاستراحة"},
			ColDelay:      {"delay", "delay time", "late", "التأخير"},
			ColAbsence:    {"absence", "absent", "الغياب"},
			ColOrders:     {"orders", "order count", "الطلبات", "عدد الطلبات"},
			ColAcceptance: {"acceptance", "acceptance rate", "نسبة القبول"},
			ColWallet:     {"wallet", "debt", "المحفظة", "المديونية"},
		},
	}

	DebtsSchema = Schema{
		Table:   TableDebts,
		Key:     ColRiderID,
		Columns: []Column{ColRiderID, ColAmount, ColDate, ColNote},
		Aliases: map[Column][]string{
			ColRiderID: idAliases,
			ColAmount:  {"amount", "debt", "value", "المبلغ", "المديونية"},
			ColDate:    {"date", "التاريخ"},
			ColNote:    {"note", "notes", "description", "ملاحظات", "ملاحظة"},
		},
	}

	AdvancesSchema = Schema{
		Table:   TableAdvances,
		Key:     ColRiderID,
		Columns: []Column{ColRiderID, ColAmount, ColDate, ColNote},
		Aliases: map[Column][]string{
			ColRiderID: idAliases,
			ColAmount:  {"amount", "advance", "value", "المبلغ", "السلفة"},
			ColDate:    {"date", "التاريخ"},
			ColNote:    {"note", "notes", "description", "ملاحظات", "ملاحظة"},
		},
	}

	SupervisorsSchema = Schema{
		Table:   TableSupervisors,
		Key:     ColCode,
		Columns: []Column{ColCode, ColName, ColRegion, ColPhone},
		Aliases: map[Column][]string{
			ColCode:   {"code", "supervisor code", "id", "كود المشرف"},
			ColName:   {"name", "supervisor name", "الاسم", "اسم المشرف"},
			ColRegion: {"region", "area", "المنطقة"},
			ColPhone:  {"phone", "mobile", "الجوال"},
		},
	}
)

// Layout maps a column to its index within a row; -1 when absent.
type Layout map[Column]int

// Locate resolves the layout of a table from its header row.
func (s Schema) Locate(header []any) Layout {
	index := make(map[string]int, len(header))
	for i, cell := range header {
		h := normalizeHeader(String(cell))
		if h == "" {
			continue
		}
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	layout := make(Layout, len(s.Columns))
	for _, col := range s.Columns {
		layout[col] = -1
		for _, alias := range s.Aliases[col] {
			if i, ok := index[normalizeHeader(alias)]; ok {
				layout[col] = i
				break
			}
		}
	}

	// An unrecognized header falls back to the canonical column order.
	if layout[s.Key] < 0 {
		for i, col := range s.Columns {
			layout[col] = i
		}
	}
	return layout
}

// Cell returns the raw cell of col in row, nil when out of range.
func (l Layout) Cell(row []any, col Column) any {
	i, ok := l[col]
	if !ok || i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

// Header returns the canonical header row of the schema.
func (s Schema) Header() []any {
	out := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = string(c)
	}
	return out
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '_' || r == '-' || r == '.' || r == '(' || r == ')' || r == '%' {
			return -1
		}
		return r
	}, h)
}

// IsBlank reports whether every cell of row is empty.
func IsBlank(row []any) bool {
	for _, c := range row {
		if String(c) != "" {
			return false
		}
	}
	return true
}

// SchemaFor returns the schema of a logical table.
func SchemaFor(t Table) (Schema, bool) {
	switch t {
	case TableRiders:
		return RidersSchema, true
	case TablePerformance:
		return PerformanceSchema, true
	case TableDebts:
		return DebtsSchema, true
	case TableAdvances:
		return AdvancesSchema, true
	case TableSupervisors:
		return SupervisorsSchema, true
	}
	return Schema{}, false
}

// Tables lists every logical table.
var Tables = []Table{TableRiders, TablePerformance, TableDebts, TableAdvances, TableSupervisors}

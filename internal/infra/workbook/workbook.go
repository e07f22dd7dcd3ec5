// Package workbook serves the logical tables from a local spreadsheet file,
// one worksheet per table. .xlsx files are read and written with excelize;
// legacy .xls exports are read-only.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/infra/resilience"
	"github.com/boddenberg/fleetpay-go/internal/sheet"
)

var tracer = otel.Tracer("workbook")

const maxXLSRows = 100000

// ErrReadOnly is returned for writes against an .xls file.
var ErrReadOnly = errors.New("xls workbooks are read-only")

// Provider implements port.RowsProvider over a workbook file.
type Provider struct {
	path   string
	legacy bool
	mu     sync.RWMutex
	guard  *resilience.Guard
	logger *zap.Logger
}

// New creates a provider for the file at path. The file is created on the
// first write when it does not exist.
func New(path string, guard *resilience.Guard, logger *zap.Logger) *Provider {
	ext := strings.ToLower(filepath.Ext(path))
	return &Provider{
		path:   path,
		legacy: ext == ".xls",
		guard:  guard,
		logger: logger,
	}
}

// Name identifies the backend in logs and health output.
func (p *Provider) Name() string { return "workbook" }

// ReadRows returns every row of the table's worksheet.
func (p *Provider) ReadRows(ctx context.Context, table sheet.Table) ([][]any, error) {
	ctx, span := tracer.Start(ctx, "Workbook.ReadRows")
	defer span.End()
	span.SetAttributes(attribute.String("table", string(table)))

	var rows [][]any
	err := p.guard.Do(ctx, func(context.Context) error {
		p.mu.RLock()
		defer p.mu.RUnlock()

		var err error
		if p.legacy {
			rows, err = p.readXLS(table)
		} else {
			rows, err = p.readXLSX(table)
		}
		return err
	})
	if err != nil {
		return nil, p.wrap(err)
	}

	p.logger.Debug("workbook: rows read",
		zap.String("table", string(table)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// WriteRows replaces the whole worksheet, creating it when missing.
func (p *Provider) WriteRows(ctx context.Context, table sheet.Table, rows [][]any) error {
	ctx, span := tracer.Start(ctx, "Workbook.WriteRows")
	defer span.End()
	span.SetAttributes(attribute.String("table", string(table)), attribute.Int("rows", len(rows)))

	if p.legacy {
		return &domain.ErrValidation{Field: "table", Message: ErrReadOnly.Error()}
	}

	err := p.guard.Do(ctx, func(context.Context) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.update(func(f *excelize.File) error {
			return replaceSheet(f, string(table), rows)
		})
	})
	if err != nil {
		return p.wrap(err)
	}

	p.logger.Info("workbook: table rewritten",
		zap.String("table", string(table)),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// AppendRows adds rows after the last non-empty row. A missing worksheet is
// created with the table's canonical header first.
func (p *Provider) AppendRows(ctx context.Context, table sheet.Table, rows [][]any) error {
	ctx, span := tracer.Start(ctx, "Workbook.AppendRows")
	defer span.End()
	span.SetAttributes(attribute.String("table", string(table)), attribute.Int("rows", len(rows)))

	if p.legacy {
		return &domain.ErrValidation{Field: "table", Message: ErrReadOnly.Error()}
	}
	if len(rows) == 0 {
		return nil
	}

	err := p.guard.Do(ctx, func(context.Context) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.update(func(f *excelize.File) error {
			name := string(table)
			idx, err := f.GetSheetIndex(name)
			if err != nil {
				return err
			}
			if idx < 0 {
				seed := rows
				if schema, ok := sheet.SchemaFor(table); ok {
					seed = append([][]any{schema.Header()}, rows...)
				}
				return replaceSheet(f, name, seed)
			}
			existing, err := f.GetRows(name)
			if err != nil {
				return err
			}
			return writeFrom(f, name, len(existing)+1, rows)
		})
	})
	if err != nil {
		return p.wrap(err)
	}

	p.logger.Info("workbook: rows appended",
		zap.String("table", string(table)),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// Ping checks that the file can be opened.
func (p *Provider) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, err := os.Stat(p.path); err != nil {
		return err
	}
	if p.legacy {
		_, err := xls.Open(p.path, "utf-8")
		return err
	}
	f, err := excelize.OpenFile(p.path)
	if err != nil {
		return err
	}
	return f.Close()
}

func (p *Provider) readXLSX(table sheet.Table) ([][]any, error) {
	f, err := excelize.OpenFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.ErrTableMissing{Table: string(table)}
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	idx, err := f.GetSheetIndex(string(table))
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, &domain.ErrTableMissing{Table: string(table)}
	}

	raw, err := f.GetRows(string(table))
	if err != nil {
		return nil, err
	}
	return toAny(raw), nil
}

func (p *Provider) readXLS(table sheet.Table) ([][]any, error) {
	wb, err := xls.Open(p.path, "utf-8")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.ErrTableMissing{Table: string(table)}
		}
		return nil, err
	}

	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil || !strings.EqualFold(strings.TrimSpace(ws.Name), string(table)) {
			continue
		}
		var out [][]any
		for r := 0; r <= int(ws.MaxRow) && r < maxXLSRows; r++ {
			row := ws.Row(r)
			if row == nil {
				out = append(out, nil)
				continue
			}
			cells := make([]any, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			out = append(out, cells)
		}
		return out, nil
	}
	return nil, &domain.ErrTableMissing{Table: string(table)}
}

// update opens (or creates) the workbook, applies fn and saves it.
func (p *Provider) update(fn func(f *excelize.File) error) error {
	f, err := excelize.OpenFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		if dir := filepath.Dir(p.path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err = excelize.NewFile(), nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := fn(f); err != nil {
		return err
	}
	return f.SaveAs(p.path)
}

func (p *Provider) wrap(err error) error {
	var (
		missing    *domain.ErrTableMissing
		validation *domain.ErrValidation
		open       *domain.ErrCircuitOpen
	)
	if errors.As(err, &missing) || errors.As(err, &validation) || errors.As(err, &open) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	p.logger.Error("workbook: operation failed", zap.String("path", p.path), zap.Error(err))
	return &domain.ErrExternalService{Service: "workbook", Err: err}
}

// replaceSheet rewrites a worksheet through a scratch sheet so the workbook
// never ends up without sheets.
func replaceSheet(f *excelize.File, name string, rows [][]any) error {
	scratch := name + "~"
	if _, err := f.NewSheet(scratch); err != nil {
		return err
	}
	if err := writeFrom(f, scratch, 1, rows); err != nil {
		return err
	}
	for _, existing := range f.GetSheetList() {
		if existing == name {
			if err := f.DeleteSheet(name); err != nil {
				return err
			}
			break
		}
	}
	if err := f.SetSheetName(scratch, name); err != nil {
		return err
	}
	// drop the blank default sheet of a freshly created file
	if name != "Sheet1" {
		if rows, err := f.GetRows("Sheet1"); err == nil && len(rows) == 0 && len(f.GetSheetList()) > 1 {
			_ = f.DeleteSheet("Sheet1")
		}
	}
	return nil
}

func writeFrom(f *excelize.File, name string, firstRow int, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, firstRow+i)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("writing row %d of %s: %w", firstRow+i, name, err)
		}
	}
	return nil
}

func toAny(raw [][]string) [][]any {
	out := make([][]any, len(raw))
	for i, row := range raw {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}

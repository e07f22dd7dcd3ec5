// Package gsheets serves the logical tables from a Google Sheets spreadsheet,
// one tab per table.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/infra/resilience"
	"github.com/boddenberg/fleetpay-go/internal/sheet"
)

var tracer = otel.Tracer("gsheets")

// Provider implements port.RowsProvider over the Sheets v4 API.
type Provider struct {
	svc           *sheets.Service
	spreadsheetID string
	guard         *resilience.Guard
	logger        *zap.Logger
}

// Config selects the spreadsheet and the service-account credentials.
type Config struct {
	SpreadsheetID   string
	CredentialsFile string
}

// New builds the Sheets client. Extra options (endpoint, HTTP client) are
// appended after the credentials.
func New(ctx context.Context, cfg Config, guard *resilience.Guard, logger *zap.Logger, opts ...option.ClientOption) (*Provider, error) {
	if cfg.SpreadsheetID == "" {
		return nil, &domain.ErrConfig{Key: "SHEETS_SPREADSHEET_ID", Err: errors.New("required")}
	}

	clientOpts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Provider{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		guard:         guard,
		logger:        logger,
	}, nil
}

// Name identifies the backend in logs and health output.
func (p *Provider) Name() string { return "sheets" }

// Ping fetches the spreadsheet ID field only.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.svc.Spreadsheets.Get(p.spreadsheetID).
		Fields("spreadsheetId").
		Context(ctx).
		Do()
	if err != nil {
		return p.wrap(err)
	}
	return nil
}

// ReadRows returns the formatted values of the whole tab.
func (p *Provider) ReadRows(ctx context.Context, table sheet.Table) ([][]any, error) {
	ctx, span := tracer.Start(ctx, "Sheets.ReadRows")
	defer span.End()
	span.SetAttributes(attribute.String("table", string(table)))

	var rows [][]any
	err := p.guard.Do(ctx, func(ctx context.Context) error {
		resp, err := p.svc.Spreadsheets.Values.Get(p.spreadsheetID, string(table)).
			ValueRenderOption("FORMATTED_VALUE").
			Context(ctx).
			Do()
		if err != nil {
			return p.classify(table, err)
		}
		rows = resp.Values
		return nil
	})
	if err != nil {
		return nil, p.wrap(err)
	}

	p.logger.Debug("sheets: rows read",
		zap.String("table", string(table)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// WriteRows clears the tab and writes rows from A1, adding the tab if needed.
func (p *Provider) WriteRows(ctx context.Context, table sheet.Table, rows [][]any) error {
	ctx, span := tracer.Start(ctx, "Sheets.WriteRows")
	defer span.End()
	span.SetAttributes(attribute.String("table", string(table)), attribute.Int("rows", len(rows)))

	err := p.guard.Do(ctx, func(ctx context.Context) error {
		_, err := p.svc.Spreadsheets.Values.Clear(p.spreadsheetID, string(table), &sheets.ClearValuesRequest{}).
			Context(ctx).
			Do()
		if err != nil {
			if cerr := p.classify(table, err); isMissing(cerr) {
				if err := p.addTab(ctx, table); err != nil {
					return err
				}
			} else {
				return cerr
			}
		}
		if len(rows) == 0 {
			return nil
		}
		_, err = p.svc.Spreadsheets.Values.Update(p.spreadsheetID, string(table)+"!A1", &sheets.ValueRange{Values: rows}).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return p.wrap(err)
	}

	p.logger.Info("sheets: table rewritten",
		zap.String("table", string(table)),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// AppendRows appends after the table's last row. A missing tab is created
// with the canonical header. Failed appends are not retried.
func (p *Provider) AppendRows(ctx context.Context, table sheet.Table, rows [][]any) error {
	ctx, span := tracer.Start(ctx, "Sheets.AppendRows")
	defer span.End()
	span.SetAttributes(attribute.String("table", string(table)), attribute.Int("rows", len(rows)))

	if len(rows) == 0 {
		return nil
	}

	err := p.guard.Do(ctx, func(ctx context.Context) error {
		values := rows
		_, err := p.append(ctx, table, values)
		if err == nil {
			return nil
		}
		// Only a missing tab proves nothing was written; any other failure
		// may follow a committed append.
		if cerr := p.classify(table, err); !isMissing(cerr) {
			return resilience.Permanent(cerr)
		}
		if err := p.addTab(ctx, table); err != nil {
			return err
		}
		if schema, ok := sheet.SchemaFor(table); ok {
			values = append([][]any{schema.Header()}, rows...)
		}
		_, err = p.append(ctx, table, values)
		return resilience.Permanent(err)
	})
	if err != nil {
		return p.wrap(err)
	}

	p.logger.Info("sheets: rows appended",
		zap.String("table", string(table)),
		zap.Int("rows", len(rows)),
	)
	return nil
}

func (p *Provider) append(ctx context.Context, table sheet.Table, rows [][]any) (*sheets.AppendValuesResponse, error) {
	return p.svc.Spreadsheets.Values.Append(p.spreadsheetID, string(table)+"!A1", &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
}

func (p *Provider) addTab(ctx context.Context, table sheet.Table) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: string(table)},
			},
		}},
	}
	_, err := p.svc.Spreadsheets.BatchUpdate(p.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("adding tab %s: %w", table, err)
	}
	p.logger.Info("sheets: tab created", zap.String("table", string(table)))
	return nil
}

// classify turns API errors into domain errors where they carry meaning.
func (p *Provider) classify(table sheet.Table, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch {
	case gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range"):
		return &domain.ErrTableMissing{Table: string(table)}
	case gerr.Code == http.StatusNotFound:
		return resilience.Permanent(&domain.ErrNotFound{Resource: "spreadsheet", ID: p.spreadsheetID})
	case gerr.Code == http.StatusForbidden || gerr.Code == http.StatusUnauthorized:
		return resilience.Permanent(err)
	}
	return err
}

func (p *Provider) wrap(err error) error {
	var (
		missing *domain.ErrTableMissing
		open    *domain.ErrCircuitOpen
	)
	if errors.As(err, &missing) || errors.As(err, &open) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	p.logger.Error("sheets: operation failed", zap.String("spreadsheet", p.spreadsheetID), zap.Error(err))
	return &domain.ErrExternalService{Service: "sheets", Err: err}
}

func isMissing(err error) bool {
	var missing *domain.ErrTableMissing
	return errors.As(err, &missing)
}

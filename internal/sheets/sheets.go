package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"prsheet/internal/retry"
	"prsheet/internal/row"
	"prsheet/internal/syncer"
)

// ErrSheetNotFound is returned when the document has no tab with the
// configured name.
var ErrSheetNotFound = errors.New("sheet not found")

// Config configures a Service.
type Config struct {
	// CredentialsPath is an absolute path to a service account key. Leave it
	// empty only when the client options carry their own credentials.
	CredentialsPath string
	// LastColumn bounds reads to A:<LastColumn>. Empty reads every column.
	LastColumn string
	Retry      retry.Policy
	Logger     *zap.Logger
}

// Service implements syncer.Sheet on the Google Sheets API. Rate limited
// and server errors are retried with the configured policy.
type Service struct {
	srv    *sheets.Service
	cfg    Config
	log    *zap.Logger
	mu     sync.Mutex
	tabIDs map[syncer.SheetRef]int64
}

var _ syncer.Sheet = (*Service)(nil)

func NewService(ctx context.Context, cfg Config, extra ...option.ClientOption) (*Service, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		if !filepath.IsAbs(cfg.CredentialsPath) {
			return nil, fmt.Errorf("google credentials must be an absolute path: %s", cfg.CredentialsPath)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheets.SpreadsheetsScope))
	}
	opts = append(opts, extra...)

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.Initial == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{srv: srv, cfg: cfg, log: log, tabIDs: map[syncer.SheetRef]int64{}}, nil
}

// ReadAllRows returns formulas rather than rendered values so hyperlink
// cells keep their URL.
func (s *Service) ReadAllRows(ctx context.Context, ref syncer.SheetRef) ([][]any, error) {
	rangeName := quote(ref.SheetName)
	if s.cfg.LastColumn != "" {
		rangeName = fmt.Sprintf("%s!A:%s", rangeName, s.cfg.LastColumn)
	}
	var resp *sheets.ValueRange
	err := s.do(ctx, "read", func() error {
		var err error
		resp, err = s.srv.Spreadsheets.Values.Get(ref.DocumentID, rangeName).
			ValueRenderOption("FORMULA").
			DateTimeRenderOption("FORMATTED_STRING").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *Service) ApplyCellUpdates(ctx context.Context, ref syncer.SheetRef, cells []row.Cell) error {
	if len(cells) == 0 {
		return nil
	}
	data := make([]*sheets.ValueRange, 0, len(cells))
	for _, c := range cells {
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", quote(ref.SheetName), row.ColumnLetter(c.Column), c.Row),
			Values: [][]any{{c.Value}},
		})
	}
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED", Data: data}
	return s.do(ctx, "update", func() error {
		_, err := s.srv.Spreadsheets.Values.BatchUpdate(ref.DocumentID, req).Context(ctx).Do()
		return err
	})
}

func (s *Service) InsertBlankRow(ctx context.Context, ref syncer.SheetRef, position int) error {
	if position < 2 {
		return fmt.Errorf("insert at row %d: header row cannot move", position)
	}
	tab, err := s.tabID(ctx, ref)
	if err != nil {
		return err
	}
	return s.batch(ctx, ref, "insert", &sheets.Request{
		InsertDimension: &sheets.InsertDimensionRequest{
			Range: &sheets.DimensionRange{
				SheetId:    tab,
				Dimension:  "ROWS",
				StartIndex: int64(position - 1),
				EndIndex:   int64(position),
			},
			InheritFromBefore: position > 2,
		},
	})
}

// MoveRow translates "ends up at to" into the API's destination index,
// which counts positions before the source row is removed.
func (s *Service) MoveRow(ctx context.Context, ref syncer.SheetRef, from, to int) error {
	if from == to {
		return nil
	}
	tab, err := s.tabID(ctx, ref)
	if err != nil {
		return err
	}
	dst := to - 1
	if to > from {
		dst = to
	}
	return s.batch(ctx, ref, "move", &sheets.Request{
		MoveDimension: &sheets.MoveDimensionRequest{
			Source: &sheets.DimensionRange{
				SheetId:    tab,
				Dimension:  "ROWS",
				StartIndex: int64(from - 1),
				EndIndex:   int64(from),
			},
			DestinationIndex: int64(dst),
		},
	})
}

func (s *Service) batch(ctx context.Context, ref syncer.SheetRef, op string, reqs ...*sheets.Request) error {
	body := &sheets.BatchUpdateSpreadsheetRequest{Requests: reqs}
	return s.do(ctx, op, func() error {
		_, err := s.srv.Spreadsheets.BatchUpdate(ref.DocumentID, body).Context(ctx).Do()
		return err
	})
}

// Check verifies that ref names an existing tab.
func (s *Service) Check(ctx context.Context, ref syncer.SheetRef) error {
	_, err := s.tabID(ctx, ref)
	return err
}

// tabID resolves the numeric id of the named tab once per ref.
func (s *Service) tabID(ctx context.Context, ref syncer.SheetRef) (int64, error) {
	s.mu.Lock()
	id, ok := s.tabIDs[ref]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	var doc *sheets.Spreadsheet
	err := s.do(ctx, "resolve", func() error {
		var err error
		doc, err = s.srv.Spreadsheets.Get(ref.DocumentID).Fields("sheets.properties").Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == ref.SheetName {
			s.mu.Lock()
			s.tabIDs[ref] = sh.Properties.SheetId
			s.mu.Unlock()
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("%w: %q in %s", ErrSheetNotFound, ref.SheetName, ref.DocumentID)
}

func (s *Service) do(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	return s.cfg.Retry.Do(ctx, retryable, func() error {
		attempt++
		err := fn()
		if err != nil && retryable(err) {
			s.log.Warn("Sheets call throttled", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
}

func retryable(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError
}

// quote wraps a tab name for A1 notation.
func quote(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ExtractSheetID accepts a spreadsheet URL or a bare document id.
func ExtractSheetID(sheetURL string) (string, error) {
	if sheetURL == "" {
		return "", errors.New("sheet URL cannot be empty")
	}
	// Supports full URLs like https://docs.google.com/spreadsheets/d/<id>/edit
	re := regexp.MustCompile(`^https?://docs\.google\.com/spreadsheets/d/([^/]+)/?`)
	matches := re.FindStringSubmatch(sheetURL)
	if len(matches) == 2 {
		return matches[1], nil
	}
	// Allow providing just the sheet ID.
	if !strings.Contains(sheetURL, "/") {
		return sheetURL, nil
	}
	return "", fmt.Errorf("unable to parse sheet id from URL: %s", sheetURL)
}

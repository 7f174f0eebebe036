// Package export writes derived rows to CSV or XLSX files.
package export

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
	"github.com/rpattn/trialnotes/internal/query"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var mimeTypes = map[string]string{
	FormatCSV:  "text/csv",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ErrUnsupportedFormat is returned for formats other than csv and xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// RowSource yields the filtered, derived rows to export.
type RowSource interface {
	GetFilteredRows(ctx context.Context, rules []domain.DeriveRule, tree *domain.FilterGroup) ([]*domain.Row, error)
}

// Service writes export files into a directory and hands out signed
// download links for them.
type Service struct {
	rows     RowSource
	log      *logger.Logger
	dir      string
	basePath string
	signer   *downloadSigner
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithExportDirectory sets where export files are written.
func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.dir = filepath.Clean(dir)
		}
	}
}

// WithDownloadBasePath sets the URL prefix used for download links.
func WithDownloadBasePath(path string) Option {
	return func(s *Service) {
		if strings.TrimSpace(path) != "" {
			s.basePath = strings.TrimSuffix(path, "/")
		}
	}
}

// WithDownloadTokenTTL customizes the TTL for generated download links.
func WithDownloadTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.signer = newDownloadSigner(ttl)
		}
	}
}

// NewService creates an export service reading rows from source.
func NewService(source RowSource, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		rows:     source,
		log:      log,
		dir:      filepath.Join(os.TempDir(), "trialnotes-exports"),
		basePath: "/api/export/files",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.signer == nil {
		s.signer = newDownloadSigner(5 * time.Minute)
	}
	return s
}

// Request describes one export. A nil Filter exports every row. When both
// pivot fields are set, XLSX exports carry a second sheet with their pivot.
type Request struct {
	Name      string
	Format    string
	Rules     []domain.DeriveRule
	Filter    *domain.FilterGroup
	Columns   []string
	PivotRows string
	PivotCols string
}

// Result describes a written export file.
type Result struct {
	ID          uuid.UUID `json:"id"`
	FileName    string    `json:"fileName"`
	Format      string    `json:"format"`
	MimeType    string    `json:"mimeType"`
	Rows        int       `json:"rows"`
	ByteSize    int64     `json:"byteSize"`
	CreatedAt   time.Time `json:"createdAt"`
	DownloadURL string    `json:"downloadUrl"`
}

// Export writes the requested rows to a new file.
func (s *Service) Export(ctx context.Context, req Request) (Result, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = FormatCSV
	}
	if _, ok := mimeTypes[format]; !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}

	rows, err := s.rows.GetFilteredRows(ctx, req.Rules, req.Filter)
	if err != nil {
		return Result{}, fmt.Errorf("load rows: %w", err)
	}
	if err := s.ensureExportDirectory(); err != nil {
		return Result{}, err
	}

	id := uuid.New()
	base := sanitizeFileComponent(req.Name)
	if base == "" {
		base = "entries"
	}
	name := fmt.Sprintf("%s-%s.%s", base, id.String(), format)
	path := filepath.Join(s.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("create export file: %w", err)
	}
	counter := &countingWriter{writer: bufio.NewWriter(file)}

	columns := req.Columns
	if len(columns) == 0 {
		columns = Columns(rows)
	}
	switch format {
	case FormatXLSX:
		var pivot *query.PivotTable
		if req.PivotRows != "" && req.PivotCols != "" {
			pivot = query.PivotRows(rows, req.PivotRows, req.PivotCols)
		}
		err = WriteXLSX(counter, columns, rows, pivot)
	default:
		err = WriteCSV(counter, columns, rows)
	}
	if err == nil {
		err = counter.writer.Flush()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return Result{}, fmt.Errorf("write export: %w", err)
	}

	result := Result{
		ID:        id,
		FileName:  name,
		Format:    format,
		MimeType:  mimeTypes[format],
		Rows:      len(rows),
		ByteSize:  counter.count,
		CreatedAt: s.now().UTC(),
	}
	result.DownloadURL = s.BuildDownloadURL(id)

	s.log.Info().
		Str("func", "Service.Export").
		Str("file", name).
		Int("rows", result.Rows).
		Int64("bytes", result.ByteSize).
		Msg("export written")
	return result, nil
}

// BuildDownloadURL returns a signed, expiring link to an export file.
func (s *Service) BuildDownloadURL(id uuid.UUID) string {
	token := s.signer.Sign(id, s.now())
	return fmt.Sprintf("%s/%s?token=%s", s.basePath, id.String(), token)
}

// ValidateDownloadToken checks a token produced by BuildDownloadURL.
func (s *Service) ValidateDownloadToken(id uuid.UUID, token string) error {
	return s.signer.Verify(id, token, s.now())
}

// OpenFile opens the export file with the given id. The caller closes it.
func (s *Service) OpenFile(id uuid.UUID) (*os.File, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*-"+id.String()+".*"))
	if err != nil {
		return nil, fmt.Errorf("locate export file: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("export %s: %w", id, domain.ErrNotFound)
	}
	file, err := os.Open(matches[0])
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return file, nil
}

// MimeType returns the content type for an export file name.
func MimeType(name string) string {
	if mt, ok := mimeTypes[strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")]; ok {
		return mt
	}
	return "application/octet-stream"
}

func (s *Service) ensureExportDirectory() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("ensure export directory: %w", err)
	}
	return nil
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "export"
	}
	return result
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}

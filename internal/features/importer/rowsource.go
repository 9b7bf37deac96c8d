package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"go-lead-import/internal/models"

	"github.com/xuri/excelize/v2"
)

// rowSource streams source file rows one at a time, so a parse invocation
// never has to hold a whole spreadsheet in memory.
type rowSource interface {
	// Next returns the next row's cells, or io.EOF when exhausted.
	Next() ([]string, error)
	Close() error
}

// openRowSource builds the reader matching the job's detected file type,
// delimiter and sheet.
func openRowSource(job *models.ImportJob, rc io.ReadCloser) (rowSource, error) {
	switch job.FileType {
	case models.FileTypeCSV:
		return newCSVSource(rc, job.Delimiter), nil
	case models.FileTypeExcel:
		return newExcelSource(rc, job.SheetName)
	default:
		return nil, fmt.Errorf("unsupported file type %q", job.FileType)
	}
}

type csvSource struct {
	rc     io.ReadCloser
	reader *csv.Reader
}

func newCSVSource(rc io.ReadCloser, delimiter string) *csvSource {
	buffered := bufio.NewReader(rc)
	stripBOM(buffered)

	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if delimiter != "" {
		reader.Comma = rune(delimiter[0])
	}

	return &csvSource{rc: rc, reader: reader}
}

func (s *csvSource) Next() ([]string, error) {
	return s.reader.Read()
}

func (s *csvSource) Close() error {
	return s.rc.Close()
}

func stripBOM(r *bufio.Reader) {
	bom := []byte{0xEF, 0xBB, 0xBF}
	if head, err := r.Peek(3); err == nil && bytes.Equal(head, bom) {
		r.Discard(3)
	}
}

type excelSource struct {
	file *excelize.File
	rows *excelize.Rows
	rc   io.ReadCloser
}

func newExcelSource(rc io.ReadCloser, sheet string) (*excelSource, error) {
	f, err := excelize.OpenReader(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, fmt.Errorf("no sheets found in spreadsheet")
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	return &excelSource{file: f, rows: rows, rc: rc}, nil
}

func (s *excelSource) Next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return s.rows.Columns()
}

func (s *excelSource) Close() error {
	s.rows.Close()
	s.file.Close()
	return s.rc.Close()
}

// detectFileType classifies the upload by extension.
func detectFileType(filename string) (models.FileType, error) {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".txt"):
		return models.FileTypeCSV, nil
	case strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xls"):
		return models.FileTypeExcel, nil
	default:
		return "", fmt.Errorf("unsupported file format %q", filename)
	}
}

// detectDelimiter picks the separator occurring most often in the first line.
func detectDelimiter(data []byte) string {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	candidates := []string{",", ";", "\t", "|"}
	best := ","
	bestCount := 0
	for _, c := range candidates {
		if n := bytes.Count(line, []byte(c)); n > bestCount {
			best = c
			bestCount = n
		}
	}
	return best
}

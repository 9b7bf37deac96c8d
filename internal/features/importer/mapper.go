package importer

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"go-lead-import/internal/models"
)

// Preview is what the client gets back right after upload: a sample of the
// file plus the auto-mapper's suggested column mapping to confirm or edit.
type Preview struct {
	Headers    []string              `json:"headers"`
	SampleRows [][]string            `json:"sample_rows"`
	TotalRows  int                   `json:"total_rows"`
	Mapping    *models.ColumnMapping `json:"mapping"`
}

const sampleRowCount = 5

// buildPreview scans the whole file once: counts data rows, keeps the first
// few as samples and proposes a mapping from the header row.
func buildPreview(job *models.ImportJob, rc io.ReadCloser) (*Preview, error) {
	source, err := openRowSource(job, rc)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	var headers []string
	var samples [][]string
	total := 0
	first := true
	hasHeader := false

	for {
		row, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if first {
			first = false
			hasHeader = looksLikeHeader(row)
			if hasHeader {
				headers = row
				continue
			}
			headers = syntheticHeaders(len(row))
		}

		total++
		if len(samples) < sampleRowCount {
			samples = append(samples, row)
		}
	}

	mapping := SuggestMapping(headers, samples)
	mapping.HasHeaderRow = hasHeader
	mapping.HeaderRowIndex = 0

	return &Preview{
		Headers:    headers,
		SampleRows: samples,
		TotalRows:  total,
		Mapping:    mapping,
	}, nil
}

// SuggestMapping scores every header against the lead field catalog and
// binds the best match above threshold. Sample values ride along so the UI
// can show what a column holds.
func SuggestMapping(headers []string, samples [][]string) *models.ColumnMapping {
	mapping := &models.ColumnMapping{}
	used := map[string]bool{}

	for i, header := range headers {
		col := models.ColumnMap{
			SourceColumn: header,
			SourceIndex:  i,
		}

		if field, confidence := matchTarget(header); field != "" && !used[field] && confidence >= 0.6 {
			col.TargetField = field
			col.Confidence = confidence
			used[field] = true
		}

		for _, sample := range samples {
			if i < len(sample) && sample[i] != "" {
				col.SampleValues = append(col.SampleValues, sample[i])
			}
		}

		mapping.Columns = append(mapping.Columns, col)
	}
	return mapping
}

var headerClean = regexp.MustCompile(`[^a-z0-9]+`)

func canonical(s string) string {
	return strings.TrimSpace(headerClean.ReplaceAllString(strings.ToLower(s), " "))
}

// matchTarget returns the best lead field for a header plus a confidence
// score; ("", 0) when nothing is close enough.
func matchTarget(header string) (string, float64) {
	h := canonical(header)
	if h == "" {
		return "", 0
	}

	for _, field := range models.LeadFields {
		if h == canonical(field.Name) {
			return field.Name, 1.0
		}
		if h == canonical(field.Label) {
			return field.Name, 0.95
		}
		for _, alias := range field.Aliases {
			if h == canonical(alias) {
				return field.Name, 0.85
			}
		}
	}

	// Weak match: the header contains the field name ("work email" -> email).
	for _, field := range models.LeadFields {
		name := canonical(field.Name)
		if strings.Contains(h, name) || strings.Contains(name, h) {
			return field.Name, 0.6
		}
	}
	return "", 0
}

// looksLikeHeader reports whether the first row reads as column names rather
// than data: at least one cell matches a known field and no cell looks like
// an email address.
func looksLikeHeader(row []string) bool {
	matched := false
	for _, cell := range row {
		if strings.Contains(cell, "@") {
			return false
		}
		if field, _ := matchTarget(cell); field != "" {
			matched = true
		}
	}
	return matched
}

func syntheticHeaders(n int) []string {
	headers := make([]string, n)
	for i := range headers {
		headers[i] = "column_" + strconv.Itoa(i+1)
	}
	return headers
}

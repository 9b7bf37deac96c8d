package importer

import (
	"io"
	"strings"
	"testing"

	"go-lead-import/internal/models"
)

func TestSuggestMapping(t *testing.T) {
	headers := []string{"Prénom", "Nom", "E-mail", "Téléphone", "Société", "Ville", "Internal Ref"}
	samples := [][]string{
		{"Jean", "Dupont", "jean@example.com", "0612345678", "Acme", "Paris", "X-1"},
	}

	mapping := SuggestMapping(headers, samples)
	if len(mapping.Columns) != len(headers) {
		t.Fatalf("got %d columns, want %d", len(mapping.Columns), len(headers))
	}

	want := map[string]string{
		"Prénom":    "first_name",
		"Nom":       "last_name",
		"E-mail":    "email",
		"Téléphone": "phone",
		"Société":   "company",
		"Ville":     "city",
	}

	byHeader := map[string]models.ColumnMap{}
	for _, col := range mapping.Columns {
		byHeader[col.SourceColumn] = col
	}

	for header, field := range want {
		col := byHeader[header]
		if col.TargetField != field {
			t.Errorf("%q mapped to %q, want %q", header, col.TargetField, field)
		}
		if col.Confidence < 0.6 {
			t.Errorf("%q confidence = %v, want >= 0.6", header, col.Confidence)
		}
	}

	if got := byHeader["Internal Ref"].TargetField; got != "" {
		t.Errorf("unmappable header bound to %q, want unmapped", got)
	}

	if len(byHeader["E-mail"].SampleValues) == 0 {
		t.Error("mapped column should carry sample values")
	}
}

func TestSuggestMappingExactNameBeatsAlias(t *testing.T) {
	mapping := SuggestMapping([]string{"email"}, nil)
	if mapping.Columns[0].TargetField != "email" || mapping.Columns[0].Confidence != 1.0 {
		t.Errorf("exact field name must map with full confidence, got %+v", mapping.Columns[0])
	}
}

func TestSuggestMappingOneTargetPerField(t *testing.T) {
	mapping := SuggestMapping([]string{"Email", "Courriel"}, nil)

	bound := 0
	for _, col := range mapping.Columns {
		if col.TargetField == "email" {
			bound++
		}
	}
	if bound != 1 {
		t.Errorf("email bound %d times, a target field binds at most once", bound)
	}
}

func TestLooksLikeHeader(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want bool
	}{
		{"field names", []string{"first_name", "email", "phone"}, true},
		{"french labels", []string{"Prénom", "Nom", "E-mail"}, true},
		{"data row with email", []string{"Jean", "Dupont", "jean@example.com"}, false},
		{"opaque values", []string{"x1", "y2", "z3"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeHeader(tt.row); got != tt.want {
				t.Errorf("looksLikeHeader(%v) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}

func TestBuildPreviewCSV(t *testing.T) {
	csv := "first_name,last_name,email\n" +
		"jean,dupont,jean@example.com\n" +
		"marie,curie,marie@example.com\n" +
		"pierre,martin,pierre@example.com\n"

	job := &models.ImportJob{FileType: models.FileTypeCSV, Delimiter: ","}
	preview, err := buildPreview(job, io.NopCloser(strings.NewReader(csv)))
	if err != nil {
		t.Fatal(err)
	}

	if preview.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3 (header excluded)", preview.TotalRows)
	}
	if len(preview.SampleRows) != 3 {
		t.Errorf("SampleRows = %d, want 3", len(preview.SampleRows))
	}
	if !preview.Mapping.HasHeaderRow {
		t.Error("header row not detected")
	}
	if preview.Headers[2] != "email" {
		t.Errorf("Headers = %v", preview.Headers)
	}
}

func TestBuildPreviewHeaderlessCSV(t *testing.T) {
	csv := "jean,dupont,jean@example.com\nmarie,curie,marie@example.com\n"

	job := &models.ImportJob{FileType: models.FileTypeCSV, Delimiter: ","}
	preview, err := buildPreview(job, io.NopCloser(strings.NewReader(csv)))
	if err != nil {
		t.Fatal(err)
	}

	if preview.Mapping.HasHeaderRow {
		t.Error("data row misread as header")
	}
	if preview.TotalRows != 2 {
		t.Errorf("TotalRows = %d, want 2", preview.TotalRows)
	}
	if preview.Headers[0] != "column_1" {
		t.Errorf("Headers = %v, want synthetic names", preview.Headers)
	}
}

func TestBuildPreviewSemicolonDelimiter(t *testing.T) {
	csv := "first_name;email\njean;jean@example.com\n"

	job := &models.ImportJob{FileType: models.FileTypeCSV, Delimiter: ";"}
	preview, err := buildPreview(job, io.NopCloser(strings.NewReader(csv)))
	if err != nil {
		t.Fatal(err)
	}
	if len(preview.Headers) != 2 || preview.Headers[1] != "email" {
		t.Errorf("Headers = %v, want [first_name email]", preview.Headers)
	}
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"comma", "a,b,c\n1,2,3\n", ","},
		{"semicolon", "a;b;c\n1;2;3\n", ";"},
		{"tab", "a\tb\tc\n", "\t"},
		{"default comma", "single\n", ","},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectDelimiter([]byte(tt.data)); got != tt.want {
				t.Errorf("detectDelimiter = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		filename string
		want     models.FileType
		wantErr  bool
	}{
		{"contacts.csv", models.FileTypeCSV, false},
		{"contacts.CSV", models.FileTypeCSV, false},
		{"contacts.xlsx", models.FileTypeExcel, false},
		{"contacts.pdf", "", true},
		{"contacts", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := detectFileType(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("detectFileType(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("detectFileType(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

package importer

import (
	"reflect"
	"strings"
	"testing"

	"go-lead-import/internal/models"
)

func contactMapping() *models.ColumnMapping {
	return &models.ColumnMapping{
		Columns: []models.ColumnMap{
			{SourceColumn: "First Name", SourceIndex: 0, TargetField: "first_name"},
			{SourceColumn: "Last Name", SourceIndex: 1, TargetField: "last_name"},
			{SourceColumn: "Email", SourceIndex: 2, TargetField: "email"},
			{SourceColumn: "Phone", SourceIndex: 3, TargetField: "phone"},
			{SourceColumn: "Company", SourceIndex: 4, TargetField: "company"},
		},
		HasHeaderRow: true,
	}
}

func TestValidateRow(t *testing.T) {
	mapping := contactMapping()

	tests := []struct {
		name       string
		values     []string
		wantValid  bool
		wantFields map[string]string
		wantErrOn  []string
	}{
		{
			name:      "clean row",
			values:    []string{"jean", "DUPONT", "Jean.Dupont@Example.com", "+33 6 12 34 56 78", "Acme SARL"},
			wantValid: true,
			wantFields: map[string]string{
				"first_name": "Jean",
				"last_name":  "Dupont",
				"email":      "jean.dupont@example.com",
				"phone":      "+33612345678",
				"company":    "Acme SARL",
			},
		},
		{
			name:      "missing required email",
			values:    []string{"jean", "dupont", "   ", "", ""},
			wantValid: false,
			wantErrOn: []string{"email"},
		},
		{
			name:      "malformed email",
			values:    []string{"jean", "dupont", "not-an-email", "", ""},
			wantValid: false,
			wantErrOn: []string{"email"},
		},
		{
			name:      "short row missing trailing columns",
			values:    []string{"jean", "dupont", "jean@example.com"},
			wantValid: true,
			wantFields: map[string]string{
				"first_name": "Jean",
				"last_name":  "Dupont",
				"email":      "jean@example.com",
			},
		},
		{
			name:      "bad phone does not hide email error",
			values:    []string{"", "", "broken@", "abc123", ""},
			wantValid: false,
			wantErrOn: []string{"email", "phone"},
		},
		{
			name:      "phone too short",
			values:    []string{"a", "b", "a@b.com", "12345", ""},
			wantValid: false,
			wantErrOn: []string{"phone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateRow(tt.values, mapping)

			if got.Valid() != tt.wantValid {
				t.Fatalf("Valid() = %v, want %v (errors: %v)", got.Valid(), tt.wantValid, got.Errors)
			}
			for _, field := range tt.wantErrOn {
				if _, ok := got.Errors[field]; !ok {
					t.Errorf("expected error on %q, got %v", field, got.Errors)
				}
			}
			if tt.wantFields != nil && !reflect.DeepEqual(got.Normalized, tt.wantFields) {
				t.Errorf("Normalized = %v, want %v", got.Normalized, tt.wantFields)
			}
		})
	}
}

func TestValidateRowDeterministic(t *testing.T) {
	mapping := contactMapping()
	values := []string{"  marie ", "curie", "Marie@Gmailcom", "01.23.45.67.89", "Institut"}

	first := ValidateRow(values, mapping)
	for i := 0; i < 10; i++ {
		again := ValidateRow(values, mapping)
		if !reflect.DeepEqual(first.Normalized, again.Normalized) ||
			!reflect.DeepEqual(first.Errors, again.Errors) {
			t.Fatalf("run %d differs: %v vs %v", i, first, again)
		}
	}
}

func TestNormalizeEmailRepair(t *testing.T) {
	tests := []struct {
		in          string
		want        string
		wantWarning bool
		wantErr     bool
	}{
		{in: "jean@gmailcom", want: "jean@gmail.com", wantWarning: true},
		{in: "pierre@hotmailfr", want: "pierre@hotmail.fr", wantWarning: true},
		{in: "claire@orangefr", want: "claire@orange.fr", wantWarning: true},
		{in: "ok@gmail.com", want: "ok@gmail.com"},
		// unknown dotless domains cannot be repaired
		{in: "x@mycompanycom", wantErr: true},
		// already well formed, unusual domain: passes through
		{in: "dev@internal.acme.io", want: "dev@internal.acme.io"},
		{in: "UPPER@GMAIL.COM", want: "upper@gmail.com"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, warning, err := normalizeEmail(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalizeEmail(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want {
				t.Errorf("normalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if (warning != "") != tt.wantWarning {
				t.Errorf("normalizeEmail(%q) warning = %q, wantWarning %v", tt.in, warning, tt.wantWarning)
			}
			if tt.wantWarning && !strings.Contains(warning, tt.want) {
				t.Errorf("warning %q should mention repaired address %q", warning, tt.want)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "+33 6 12 34 56 78", want: "+33612345678"},
		{in: "(06) 12-34-56-78", want: "0612345678"},
		{in: "06.12.34.56.78", want: "0612345678"},
		{in: "", want: ""},
		{in: "12345", wantErr: true},
		{in: "call me", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, _, err := normalizePhone(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalizePhone(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("normalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jean", "Jean"},
		{"DUPONT", "Dupont"},
		{"  marie   claire ", "Marie Claire"},
		{"éloïse", "Éloïse"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeName(tt.in); got != tt.want {
			t.Errorf("normalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package importer

import (
	"fmt"
	"regexp"
	"strings"

	"go-lead-import/internal/models"
)

// ValidationResult is the outcome of normalizing one raw row. A row is valid
// iff Errors is empty; Warnings never affect validity.
type ValidationResult struct {
	Normalized map[string]string
	Errors     map[string]string
	Warnings   []string
}

func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// knownMailDomains drive the best-effort repair of emails missing the dot
// before the TLD ("jean@gmailcom" -> "jean@gmail.com").
var knownMailDomains = []string{
	"gmail.com",
	"googlemail.com",
	"yahoo.com",
	"yahoo.fr",
	"hotmail.com",
	"hotmail.fr",
	"outlook.com",
	"outlook.fr",
	"live.com",
	"live.fr",
	"icloud.com",
	"aol.com",
	"protonmail.com",
	"orange.fr",
	"wanadoo.fr",
	"free.fr",
	"sfr.fr",
	"laposte.net",
}

// ValidateRow maps the raw values through the column mapping and normalizes
// each target field. Pure and deterministic: same row and mapping always
// produce the same result, which is what makes chunk re-processing safe.
func ValidateRow(values []string, mapping *models.ColumnMapping) ValidationResult {
	result := ValidationResult{
		Normalized: map[string]string{},
		Errors:     map[string]string{},
	}

	for _, col := range mapping.Mapped() {
		var raw string
		if col.SourceIndex >= 0 && col.SourceIndex < len(values) {
			raw = values[col.SourceIndex]
		}

		normalized, warning, err := normalizeField(col.TargetField, raw)
		if err != nil {
			result.Errors[col.TargetField] = err.Error()
			continue
		}
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
		if normalized != "" {
			result.Normalized[col.TargetField] = normalized
		}
	}

	// Required fields are checked after normalization so a whitespace-only
	// cell counts as missing.
	for _, field := range models.LeadFields {
		if !field.Required {
			continue
		}
		if result.Normalized[field.Name] == "" {
			if _, hasError := result.Errors[field.Name]; !hasError {
				result.Errors[field.Name] = fmt.Sprintf("%s is required", field.Label)
			}
		}
	}

	return result
}

func normalizeField(field, raw string) (normalized string, warning string, err error) {
	switch field {
	case "email":
		return normalizeEmail(raw)
	case "phone":
		return normalizePhone(raw)
	case "first_name", "last_name":
		return normalizeName(raw), "", nil
	default:
		return collapseSpaces(raw), "", nil
	}
}

// normalizeEmail lowercases, trims, attempts the known-domain repair and then
// validates the syntax. Unknown but well-formed domains pass through intact.
func normalizeEmail(raw string) (string, string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", "", nil
	}

	var warning string
	if repaired, ok := repairEmailDomain(email); ok {
		warning = fmt.Sprintf("email domain auto-corrected: %s -> %s", email, repaired)
		email = repaired
	}

	if !emailPattern.MatchString(email) {
		return "", "", fmt.Errorf("invalid email address %q", raw)
	}
	return email, warning, nil
}

func repairEmailDomain(email string) (string, bool) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", false
	}

	domain := email[at+1:]
	if strings.Contains(domain, ".") {
		return "", false
	}

	for _, known := range knownMailDomains {
		if strings.ReplaceAll(known, ".", "") == domain {
			return email[:at+1] + known, true
		}
	}
	return "", false
}

var phoneStrip = regexp.MustCompile(`[\s.\-()]+`)

// normalizePhone strips separator characters and keeps a leading +.
func normalizePhone(raw string) (string, string, error) {
	phone := phoneStrip.ReplaceAllString(strings.TrimSpace(raw), "")
	if phone == "" {
		return "", "", nil
	}

	digits := phone
	if strings.HasPrefix(digits, "+") {
		digits = digits[1:]
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", "", fmt.Errorf("invalid phone number %q", raw)
		}
	}
	if len(digits) < 6 {
		return "", "", fmt.Errorf("phone number %q too short", raw)
	}
	return phone, "", nil
}

// normalizeName collapses whitespace and capitalizes each word.
func normalizeName(raw string) string {
	words := strings.Fields(strings.ToLower(raw))
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func collapseSpaces(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

package importer

import (
	"context"
	"strings"

	"go-lead-import/internal/models"
	"go-lead-import/internal/repository"
)

// DuplicateResolver decides whether a normalized row collides with an
// existing contact, scoped by the job's DuplicateConfig.
type DuplicateResolver struct {
	leads    repository.LeadRepository
	contacts repository.ContactSource
}

func NewDuplicateResolver(leads repository.LeadRepository, contacts repository.ContactSource) *DuplicateResolver {
	return &DuplicateResolver{
		leads:    leads,
		contacts: contacts,
	}
}

// Match is the outcome of a duplicate check. Existing is set only when the
// collision is a lead in the CRM store that overwrite/merge can act on;
// within-file and external-source matches carry no target record.
type Match struct {
	IsDuplicate     bool
	MatchedExisting bool
	Existing        *models.Lead
}

// SeenIndex tracks the duplicate keys of rows already committed in this job,
// keyed by normalized value, mapping to the first-seen row number. It is
// bounded by the number of distinct keys, never by file size.
type SeenIndex map[string]int

// DedupeKey builds the comparison key from the configured check fields.
// Returns ok=false when all key fields are empty, which never counts as a
// duplicate.
func DedupeKey(fields []string, data map[string]string) (string, bool) {
	parts := make([]string, 0, len(fields))
	empty := true
	for _, f := range fields {
		v := strings.ToLower(strings.TrimSpace(data[f]))
		if v != "" {
			empty = false
		}
		parts = append(parts, v)
	}
	if empty {
		return "", false
	}
	return strings.Join(parts, "\x1f"), true
}

// SeedSeenIndex preloads the index with the keys of rows already imported for
// the job, so a resumed invocation still sees collisions against rows a
// previous invocation committed.
func SeedSeenIndex(ctx context.Context, rows repository.ImportRowRepository, job *models.ImportJob) (SeenIndex, error) {
	seen := SeenIndex{}
	if !job.Duplicates.CheckWithinFile {
		return seen, nil
	}

	values, err := rows.NormalizedValues(ctx, job.ID, models.RowStatusImported, job.Duplicates.CheckFields)
	if err != nil {
		return nil, err
	}
	for _, data := range values {
		if key, ok := DedupeKey(job.Duplicates.CheckFields, data); ok {
			if _, exists := seen[key]; !exists {
				seen[key] = 0
			}
		}
	}
	return seen, nil
}

// Resolve checks the row against the within-file index, the CRM lead store
// and the optional external contacts source, in that order.
func (r *DuplicateResolver) Resolve(ctx context.Context, cfg *models.DuplicateConfig, data map[string]string, seen SeenIndex) (Match, error) {
	if !cfg.Enabled() {
		return Match{}, nil
	}

	key, ok := DedupeKey(cfg.CheckFields, data)
	if !ok {
		return Match{}, nil
	}

	if cfg.CheckWithinFile {
		if _, dup := seen[key]; dup {
			return Match{IsDuplicate: true}, nil
		}
	}

	if cfg.CheckDatabase {
		lookup := make(map[string]string, len(cfg.CheckFields))
		for _, f := range cfg.CheckFields {
			lookup[f] = strings.ToLower(strings.TrimSpace(data[f]))
		}

		existing, err := r.leads.FindByFields(ctx, lookup)
		if err != nil {
			return Match{}, err
		}
		if existing != nil {
			return Match{IsDuplicate: true, MatchedExisting: true, Existing: existing}, nil
		}

		if r.contacts != nil {
			found, err := r.contacts.Exists(ctx, lookup)
			if err != nil {
				return Match{}, err
			}
			if found {
				return Match{IsDuplicate: true, MatchedExisting: true}, nil
			}
		}
	}

	return Match{}, nil
}

// MergeFields combines incoming values into the existing lead's fields.
// Precedence rule: a populated existing field always wins; incoming values
// only fill fields that are empty. Returns just the fields to update, empty
// when nothing changes.
func MergeFields(existing, incoming map[string]string) map[string]string {
	changes := map[string]string{}
	for k, v := range incoming {
		if v == "" {
			continue
		}
		if existing[k] == "" {
			changes[k] = v
		}
	}
	return changes
}

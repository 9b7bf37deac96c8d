package importer

import (
	"context"
	"fmt"
	"sync"

	"go-lead-import/internal/models"
	"go-lead-import/internal/repository"

	"github.com/d5/tengo/v2"
)

// Assigner resolves which user a new lead goes to. Round-robin position comes
// from the persisted job cursor, not an in-memory index, so distribution
// stays even across resumed invocations.
type Assigner struct {
	jobs repository.ImportJobRepository

	// compiled rule predicates, cached per job id
	mu       sync.Mutex
	compiled map[string][]*tengo.Compiled
}

func NewAssigner(jobs repository.ImportJobRepository) *Assigner {
	return &Assigner{
		jobs:     jobs,
		compiled: map[string][]*tengo.Compiled{},
	}
}

// Resolve returns the target user id, or "" for unassigned.
func (a *Assigner) Resolve(ctx context.Context, job *models.ImportJob, row map[string]string) (string, error) {
	cfg := &job.Assignment

	switch cfg.Mode {
	case "", models.AssignmentModeNone:
		return "", nil

	case models.AssignmentModeSpecific:
		return cfg.UserID, nil

	case models.AssignmentModeRoundRobin:
		cursor, err := a.jobs.NextAssignCursor(ctx, job.ID.Hex())
		if err != nil {
			return "", err
		}
		return cfg.UserIDs[cursor%int64(len(cfg.UserIDs))], nil

	case models.AssignmentModeRule:
		return a.resolveRule(job.ID.Hex(), cfg, row)

	default:
		return "", fmt.Errorf("unknown assignment mode %q", cfg.Mode)
	}
}

// resolveRule evaluates the Tengo predicates in order; the first rule whose
// expression is true wins, otherwise the lead stays unassigned.
func (a *Assigner) resolveRule(jobID string, cfg *models.AssignmentConfig, row map[string]string) (string, error) {
	rules, err := a.compileRules(jobID, cfg)
	if err != nil {
		return "", err
	}

	fields := make(map[string]interface{}, len(row))
	for k, v := range row {
		fields[k] = v
	}

	for i, compiled := range rules {
		run := compiled.Clone()
		if err := run.Set("row", fields); err != nil {
			return "", err
		}
		if err := run.Run(); err != nil {
			return "", fmt.Errorf("assignment rule %d failed: %w", i, err)
		}
		if run.Get("match").Bool() {
			return cfg.Rules[i].UserID, nil
		}
	}
	return "", nil
}

func (a *Assigner) compileRules(jobID string, cfg *models.AssignmentConfig) ([]*tengo.Compiled, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cached, ok := a.compiled[jobID]; ok {
		return cached, nil
	}

	compiled := make([]*tengo.Compiled, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		script := tengo.NewScript([]byte("match := " + rule.Expr))
		_ = script.Add("row", map[string]interface{}{})

		c, err := script.Compile()
		if err != nil {
			return nil, fmt.Errorf("failed to compile assignment rule %d: %w", i, err)
		}
		compiled = append(compiled, c)
	}
	a.compiled[jobID] = compiled
	return compiled, nil
}

package models

import (
	"encoding/json"
	"testing"
)

func TestImportStatusTransitions(t *testing.T) {
	tests := []struct {
		from ImportStatus
		to   ImportStatus
		want bool
	}{
		{ImportStatusPending, ImportStatusReady, true},
		{ImportStatusPending, ImportStatusQueued, true},
		{ImportStatusReady, ImportStatusQueued, true},
		{ImportStatusReady, ImportStatusReady, true},
		{ImportStatusQueued, ImportStatusParsing, true},
		{ImportStatusParsing, ImportStatusImporting, true},
		{ImportStatusParsing, ImportStatusParsing, true},
		{ImportStatusImporting, ImportStatusImporting, true},
		{ImportStatusImporting, ImportStatusCompleted, true},
		{ImportStatusQueued, ImportStatusCompleted, true},
		{ImportStatusParsing, ImportStatusCompleted, true},

		{ImportStatusPending, ImportStatusParsing, false},
		{ImportStatusImporting, ImportStatusParsing, false},
		{ImportStatusCompleted, ImportStatusImporting, false},
		{ImportStatusFailed, ImportStatusQueued, false},
		{ImportStatusCancelled, ImportStatusImporting, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestImportStatusTerminal(t *testing.T) {
	terminal := []ImportStatus{ImportStatusCompleted, ImportStatusFailed, ImportStatusCancelled}
	active := []ImportStatus{ImportStatusPending, ImportStatusReady, ImportStatusQueued, ImportStatusParsing, ImportStatusImporting}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if len(importTransitions[s]) != 0 {
			t.Errorf("%s must allow no further transitions", s)
		}
	}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestAssignmentConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AssignmentConfig
		wantErr bool
	}{
		{"empty mode", AssignmentConfig{}, false},
		{"none", AssignmentConfig{Mode: AssignmentModeNone}, false},
		{"round robin with users", AssignmentConfig{Mode: AssignmentModeRoundRobin, UserIDs: []string{"u1"}}, false},
		{"round robin without users", AssignmentConfig{Mode: AssignmentModeRoundRobin}, true},
		{"specific with user", AssignmentConfig{Mode: AssignmentModeSpecific, UserID: "u1"}, false},
		{"specific without user", AssignmentConfig{Mode: AssignmentModeSpecific}, true},
		{"rule with predicate", AssignmentConfig{Mode: AssignmentModeRule, Rules: []AssignmentRule{{Expr: `row.country == "FR"`, UserID: "u1"}}}, false},
		{"rule without rules", AssignmentConfig{Mode: AssignmentModeRule}, true},
		{"rule missing user", AssignmentConfig{Mode: AssignmentModeRule, Rules: []AssignmentRule{{Expr: "true"}}}, true},
		{"unknown mode", AssignmentConfig{Mode: "lottery"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAssignmentConfigUnmarshalRejectsUnknownMode(t *testing.T) {
	var cfg AssignmentConfig
	if err := json.Unmarshal([]byte(`{"mode":"lottery"}`), &cfg); err == nil {
		t.Fatal("unknown mode must fail to decode")
	}

	if err := json.Unmarshal([]byte(`{"mode":"specific","user_id":"u1"}`), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != AssignmentModeSpecific || cfg.UserID != "u1" {
		t.Errorf("decoded %+v", cfg)
	}
}

func TestDuplicateConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DuplicateConfig
		wantErr bool
	}{
		{"disabled", DuplicateConfig{}, false},
		{"skip with fields", DuplicateConfig{Strategy: DuplicateSkip, CheckFields: []string{"email"}, CheckDatabase: true}, false},
		{"enabled without fields", DuplicateConfig{CheckWithinFile: true}, true},
		{"unknown strategy", DuplicateConfig{Strategy: "ignore"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDuplicateConfigEnabled(t *testing.T) {
	if (&DuplicateConfig{}).Enabled() {
		t.Error("no checks configured must mean disabled")
	}
	if !(&DuplicateConfig{CheckWithinFile: true, CheckFields: []string{"email"}}).Enabled() {
		t.Error("within-file check must enable detection")
	}
}

func TestColumnMappingMapped(t *testing.T) {
	m := &ColumnMapping{Columns: []ColumnMap{
		{SourceColumn: "A", SourceIndex: 0, TargetField: "email"},
		{SourceColumn: "B", SourceIndex: 1},
		{SourceColumn: "C", SourceIndex: 2, TargetField: "phone"},
	}}

	mapped := m.Mapped()
	if len(mapped) != 2 {
		t.Fatalf("Mapped() returned %d columns, want 2", len(mapped))
	}
	if mapped[0].TargetField != "email" || mapped[1].TargetField != "phone" {
		t.Errorf("Mapped() = %+v", mapped)
	}
}

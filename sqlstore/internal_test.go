package sqlstore

import (
	"strings"
	"testing"
	"time"

	"github.com/jacentio/arbor/nestedset"
)

func testSession(t *testing.T) *session {
	t.Helper()
	config := DefaultConfig()
	if err := config.validate(); err != nil {
		t.Fatalf("failed to validate default config: %v", err)
	}
	return &session{
		config: config,
		now:    func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

// --- Config Tests ---

func TestConfigValidate_Defaults(t *testing.T) {
	var c Config
	if err := c.validate(); err != nil {
		t.Fatalf("failed to validate zero config: %v", err)
	}
	if c != DefaultConfig() {
		t.Errorf("expected defaults %+v, got %+v", DefaultConfig(), c)
	}
}

func TestConfigValidate_PartialOverride(t *testing.T) {
	c := Config{LeftColumn: "low", RightColumn: "high"}
	if err := c.validate(); err != nil {
		t.Fatalf("failed to validate config: %v", err)
	}
	if c.LeftColumn != "low" || c.RightColumn != "high" {
		t.Errorf("expected overrides to survive, got %+v", c)
	}
	if c.KeyColumn != "name" {
		t.Errorf("expected default key column, got %q", c.KeyColumn)
	}
}

func TestConfigValidate_RejectsUnsafeIdentifiers(t *testing.T) {
	tests := []string{
		"lft; DROP TABLE accounts",
		"lft-col",
		"1col",
		"col name",
		`col"`,
	}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			c := Config{LeftColumn: name}
			if err := c.validate(); err == nil {
				t.Errorf("expected %q to be rejected", name)
			}
		})
	}
}

func TestCheckTable(t *testing.T) {
	if err := checkTable("accounts"); err != nil {
		t.Errorf("expected 'accounts' to be accepted: %v", err)
	}
	if err := checkTable("tab le"); err == nil {
		t.Error("expected 'tab le' to be rejected")
	}
	if err := checkTable(""); err == nil {
		t.Error("expected empty table name to be rejected")
	}
}

// --- WHERE Compilation Tests ---

func TestWhereSQL(t *testing.T) {
	s := testSession(t)

	tests := []struct {
		name     string
		p        nestedset.Predicate
		want     string
		wantArgs []any
	}{
		{
			"empty",
			nil,
			"",
			nil,
		},
		{
			"single",
			nestedset.Predicate{{Bound: nestedset.BoundRight, Op: nestedset.OpGE, Value: 7}},
			"rgt >= ?",
			[]any{int64(7)},
		},
		{
			"subtree conjunction",
			nestedset.Predicate{
				{Bound: nestedset.BoundLeft, Op: nestedset.OpGE, Value: 2},
				{Bound: nestedset.BoundRight, Op: nestedset.OpLE, Value: 5},
			},
			"lft >= ? AND rgt <= ?",
			[]any{int64(2), int64(5)},
		},
		{
			"negative space",
			nestedset.Predicate{{Bound: nestedset.BoundLeft, Op: nestedset.OpLT, Value: 0}},
			"lft < ?",
			[]any{int64(0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := s.whereSQL(tt.p)
			if clause != tt.want {
				t.Errorf("expected clause %q, got %q", tt.want, clause)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("expected %d args, got %d", len(tt.wantArgs), len(args))
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("arg %d: expected %v, got %v", i, tt.wantArgs[i], args[i])
				}
			}
		})
	}
}

// --- SET Compilation Tests ---

func TestSetSQL(t *testing.T) {
	s := testSession(t)

	tests := []struct {
		name string
		u    nestedset.Update
		want string
	}{
		{
			"shift both",
			nestedset.Update{Left: nestedset.Shift(2), Right: nestedset.Shift(2)},
			"lft = lft + ?, rgt = rgt + ?, modified = ?",
		},
		{
			"shift right only",
			nestedset.Update{Left: nestedset.Keep(), Right: nestedset.Shift(-4)},
			"rgt = rgt + ?, modified = ?",
		},
		{
			"detach",
			nestedset.Update{Left: nestedset.Reflect(0), Right: nestedset.Reflect(0)},
			"lft = -lft + ?, rgt = -rgt + ?, modified = ?",
		},
		{
			"assign",
			nestedset.Update{
				Left:  nestedset.Affine{Scale: 0, Offset: 9},
				Right: nestedset.Affine{Scale: 0, Offset: 10},
			},
			"lft = ?, rgt = ?, modified = ?",
		},
		{
			"general scale",
			nestedset.Update{Left: nestedset.Affine{Scale: 2, Offset: 1}, Right: nestedset.Keep()},
			"lft = ? * lft + ?, modified = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := s.setSQL(tt.u)
			if clause != tt.want {
				t.Errorf("expected clause %q, got %q", tt.want, clause)
			}
			if len(args) == 0 {
				t.Fatal("expected args to include the timestamp")
			}
			ts, ok := args[len(args)-1].(string)
			if !ok || !strings.HasPrefix(ts, "2026-01-02T03:04:05") {
				t.Errorf("expected trailing timestamp arg, got %v", args[len(args)-1])
			}
		})
	}
}

func TestSetSQL_IdentityIsEmpty(t *testing.T) {
	s := testSession(t)
	clause, args := s.setSQL(nestedset.Update{Left: nestedset.Keep(), Right: nestedset.Keep()})
	if clause != "" {
		t.Errorf("expected empty clause, got %q", clause)
	}
	if args != nil {
		t.Errorf("expected no args, got %v", args)
	}
}

func TestColumn(t *testing.T) {
	s := testSession(t)
	if got := s.column(nestedset.BoundLeft); got != "lft" {
		t.Errorf("expected lft, got %q", got)
	}
	if got := s.column(nestedset.BoundRight); got != "rgt" {
		t.Errorf("expected rgt, got %q", got)
	}
}

package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/stage3"
	"github.com/roach88/litequery/internal/wherelang"
)

// Scenario defines a test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Models lists model files or directories to load. Relative paths are
	// resolved against the scenario file's directory by LoadScenario.
	Models []string `yaml:"models"`

	// CaseInsensitive is the pattern-matching default for the models.
	CaseInsensitive bool `yaml:"case_insensitive,omitempty"`

	// Setup contains queries run before the steps. They must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Steps are the queries under test.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the statement trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one query and its expected outcome.
type Step struct {
	// Name is an optional label used in failure messages.
	Name string `yaml:"name,omitempty"`

	// Query is the stage-three query in its loose map form.
	Query map[string]any `yaml:"query"`

	// Where, when set, replaces the query's where predicate with a parsed
	// where expression.
	Where string `yaml:"where,omitempty"`

	// Expect specifies the expected outcome. Nil expects success and
	// checks nothing else.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies a step's expected outcome. Record values are matched as
// subsets: only the listed attributes are compared, nested records and
// lists recursively.
type Expect struct {
	// Error is the expected dberr kind (NOT_UNIQUE, CONSISTENCY_VIOLATION,
	// ...). Empty expects success.
	Error string `yaml:"error,omitempty"`

	// Code is the expected dberr code, e.g. E_PK_COLLISION.
	Code string `yaml:"code,omitempty"`

	// Columns are the expected NotUnique columns.
	Columns []string `yaml:"columns,omitempty"`

	// Count is the expected number of returned records.
	Count *int `yaml:"count,omitempty"`

	// Records are matched against the returned records. Without Ordered
	// each expected record must match a distinct returned record.
	Records []map[string]any `yaml:"records,omitempty"`
	Ordered bool             `yaml:"ordered,omitempty"`

	// Record is matched against the single record returned by create.
	Record map[string]any `yaml:"record,omitempty"`

	// Empty expects no result at all: nil record and nil records.
	Empty bool `yaml:"empty,omitempty"`

	// Scalar is the expected count, sum or avg.
	Scalar any `yaml:"scalar,omitempty"`

	// Statements is the expected number of statements the step executed.
	Statements *int `yaml:"statements,omitempty"`
}

// Assertion validates final state or the statement trace.
type Assertion struct {
	// Type is one of row_count, final_state, statement_count,
	// statement_contains.
	Type string `yaml:"type"`

	// Model is the model identity (row_count, final_state).
	Model string `yaml:"model,omitempty"`

	// Where filters records with a where expression (row_count,
	// final_state).
	Where string `yaml:"where,omitempty"`

	// Count is the expected number of records or statements.
	Count *int `yaml:"count,omitempty"`

	// Expect contains expected attribute values (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// SQL is a fragment some statement must contain (statement_contains).
	SQL string `yaml:"sql,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount          = "row_count"
	AssertFinalState        = "final_state"
	AssertStatementCount    = "statement_count"
	AssertStatementContains = "statement_contains"
)

// LoadScenario reads and parses a scenario YAML file, resolving model paths
// relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Models {
		if !filepath.IsAbs(p) {
			scenario.Models[i] = filepath.Join(base, p)
		}
	}
	for _, p := range scenario.Models {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: models path not found: %s", p)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and that every query decodes and
// every where expression parses, so a typo fails at load time rather than
// as a step mismatch.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Models) == 0 {
		return fmt.Errorf("models list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if _, err := step.query(); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}
	for i, step := range s.Steps {
		if _, err := step.query(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if err := validateExpect(step.Expect); err != nil {
			return fmt.Errorf("steps[%d].expect: %w", i, err)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateExpect(e *Expect) error {
	if e == nil {
		return nil
	}
	if e.Error == "" && (e.Code != "" || len(e.Columns) > 0) {
		return fmt.Errorf("code and columns require error")
	}
	if e.Error != "" && (e.Count != nil || e.Records != nil || e.Record != nil || e.Scalar != nil || e.Empty) {
		return fmt.Errorf("error cannot be combined with result expectations")
	}
	if e.Empty && (e.Count != nil || e.Records != nil || e.Record != nil || e.Scalar != nil) {
		return fmt.Errorf("empty cannot be combined with result expectations")
	}
	if e.Statements != nil && *e.Statements < 0 {
		return fmt.Errorf("statements must be non-negative")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Where != "" {
		if _, err := wherelang.Parse(a.Where); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}

	switch a.Type {
	case AssertRowCount:
		if a.Model == "" {
			return fmt.Errorf("assertions[%d]: model is required for row_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for row_count", index)
		}
	case AssertFinalState:
		if a.Model == "" {
			return fmt.Errorf("assertions[%d]: model is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertStatementCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for statement_count", index)
		}
	case AssertStatementContains:
		if a.SQL == "" {
			return fmt.Errorf("assertions[%d]: sql is required for statement_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// query decodes the step's query and applies its where expression.
func (s Step) query() (stage3.Query, error) {
	if s.Query == nil {
		return nil, fmt.Errorf("query is required")
	}
	q, err := stage3.Decode(s.Query)
	if err != nil {
		return nil, err
	}
	if s.Where == "" {
		return q, nil
	}
	where, err := wherelang.Parse(s.Where)
	if err != nil {
		return nil, err
	}
	q, ok := stage3.WithWhere(q, where)
	if !ok {
		return nil, dberr.Malformed(dberr.CodeMalformedQuery, "where is not supported by %s", q.Method())
	}
	return q, nil
}

// label names a step in failure messages.
func (s Step) label(section string, i int) string {
	if s.Name != "" {
		return fmt.Sprintf("%s[%d] (%s)", section, i, s.Name)
	}
	return fmt.Sprintf("%s[%d]", section, i)
}

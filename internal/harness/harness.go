package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/litequery/internal/adapter"
	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/schema"
	"github.com/roach88/litequery/internal/store"
	"github.com/roach88/litequery/internal/testutil"
)

// Harness holds the per-scenario execution state.
type Harness struct {
	store   *store.Store
	conn    *store.Conn
	adapter *adapter.Adapter
	logger  *slog.Logger

	// logged is the number of statements already copied into the trace.
	logged int
}

// Run executes a scenario in a fresh in-memory database and returns the
// result.
//
// Execution flow:
//  1. Load the scenario's models
//  2. Open an in-memory store with deterministic IDs and lease its connection
//  3. Define every model's table
//  4. Run setup queries; any failure aborts the run
//  5. Run steps, checking each expect clause
//  6. Evaluate assertions
//
// The returned error is reserved for failures of the scenario itself
// (unloadable models, failing setup); expectation mismatches are reported
// in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	reg, err := loadModels(scenario)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	st, err := store.Open(":memory:",
		store.WithLogger(logger),
		store.WithIDGenerator(testutil.NewSequentialGenerator("id")),
		store.WithStatementLog(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	conn, err := st.Lease(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lease connection: %w", err)
	}
	defer conn.Release()

	h := &Harness{
		store:   st,
		conn:    conn,
		adapter: adapter.New(reg, adapter.WithLogger(logger)),
		logger:  logger,
	}
	result := NewResult()

	for _, m := range reg.Models() {
		if err := h.adapter.DefineModel(ctx, conn, m.Identity); err != nil {
			return nil, fmt.Errorf("failed to define %s: %w", m.Identity, err)
		}
	}
	h.collect(result, "define")

	for i, step := range scenario.Setup {
		label := step.label("setup", i)
		q, err := step.query()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		_, err = h.adapter.Execute(ctx, conn, q)
		h.collect(result, fmt.Sprintf("setup[%d]", i))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
	}

	for i, step := range scenario.Steps {
		label := step.label("steps", i)
		q, err := step.query()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		res, execErr := h.adapter.Execute(ctx, conn, q)
		n := h.collect(result, fmt.Sprintf("steps[%d]", i))
		for _, msg := range checkExpect(step.Expect, res, execErr, n) {
			result.AddError(label + ": " + msg)
		}
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Conn:    conn,
		Adapter: h.adapter,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// RunFile loads the scenario at path and runs it.
func RunFile(path string) (*Scenario, *Result, error) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := Run(scenario)
	if err != nil {
		return scenario, nil, err
	}
	return scenario, result, nil
}

// collect appends the statements executed since the last call to the
// trace and returns how many there were.
func (h *Harness) collect(result *Result, step string) int {
	stmts := h.conn.Statements()
	fresh := stmts[h.logged:]
	for _, s := range fresh {
		result.Trace = append(result.Trace, TraceEvent{
			Step:     step,
			Seq:      s.Seq,
			SQL:      s.SQL,
			Bindings: s.Bindings,
			Tx:       s.TxID,
		})
	}
	h.logged = len(stmts)
	return len(fresh)
}

// loadModels loads every models path of the scenario into one registry.
func loadModels(scenario *Scenario) (*model.Registry, error) {
	reg := model.NewRegistry()
	loader := schema.NewLoader(schema.WithCaseInsensitive(scenario.CaseInsensitive))
	for _, path := range scenario.Models {
		loaded, err := loader.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load models: %w", err)
		}
		for _, m := range loaded.Models() {
			if err := reg.Register(m); err != nil {
				return nil, fmt.Errorf("failed to load models: %s: %w", path, err)
			}
		}
	}
	return reg, nil
}

// checkExpect compares a step outcome with its expect clause and returns
// the mismatches. A nil clause expects success.
func checkExpect(e *Expect, res adapter.Result, err error, statements int) []string {
	var msgs []string
	if e == nil {
		e = &Expect{}
	}
	if e.Statements != nil && *e.Statements != statements {
		msgs = append(msgs, fmt.Sprintf("expected %d statements, got %d", *e.Statements, statements))
	}

	if e.Error != "" {
		if err == nil {
			return append(msgs, fmt.Sprintf("expected error %s, got success", e.Error))
		}
		if kind := dberr.KindOf(err); string(kind) != e.Error {
			msgs = append(msgs, fmt.Sprintf("expected error %s, got %s: %v", e.Error, kind, err))
		}
		if e.Code != "" && dberr.CodeOf(err) != e.Code {
			msgs = append(msgs, fmt.Sprintf("expected code %s, got %q", e.Code, dberr.CodeOf(err)))
		}
		if len(e.Columns) > 0 && !slices.Equal(e.Columns, dberr.ColumnsOf(err)) {
			msgs = append(msgs, fmt.Sprintf("expected columns %v, got %v", e.Columns, dberr.ColumnsOf(err)))
		}
		return msgs
	}
	if err != nil {
		return append(msgs, fmt.Sprintf("unexpected error: %v", err))
	}

	if e.Empty && (res.Record != nil || res.Records != nil || res.Scalar != nil) {
		msgs = append(msgs, fmt.Sprintf("expected no result, got %s", render(resultValue(res))))
	}
	if e.Count != nil && len(res.Records) != *e.Count {
		msgs = append(msgs, fmt.Sprintf("expected %d records, got %d", *e.Count, len(res.Records)))
	}
	if e.Records != nil {
		if msg := matchRecords(e.Records, res.Records, e.Ordered); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if e.Record != nil && !matchValue(e.Record, res.Record) {
		msgs = append(msgs, fmt.Sprintf("record %s does not match %s", render(res.Record), render(e.Record)))
	}
	if e.Scalar != nil && !matchValue(e.Scalar, res.Scalar) {
		msgs = append(msgs, fmt.Sprintf("expected scalar %s, got %s", render(e.Scalar), render(res.Scalar)))
	}
	return msgs
}

func resultValue(res adapter.Result) any {
	switch {
	case res.Record != nil:
		return res.Record
	case res.Records != nil:
		return res.Records
	}
	return res.Scalar
}

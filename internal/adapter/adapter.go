package adapter

import (
	"context"
	"log/slog"

	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/join"
	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/querysql"
	"github.com/roach88/litequery/internal/record"
	"github.com/roach88/litequery/internal/stage3"
	"github.com/roach88/litequery/internal/store"
)

// keyChunk bounds the primary keys bound into one statement.
const keyChunk = querysql.MaxVariables / 2

// Conn is the connection handle operations run against. *store.Conn
// implements it.
type Conn interface {
	Exec(ctx context.Context, stmt querysql.Statement) (store.Result, error)
	Query(ctx context.Context, stmt querysql.Statement) ([]record.Record, error)
	QueryValue(ctx context.Context, stmt querysql.Statement) (any, error)
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Adapter dispatches stage-three operations to SQLite.
//
// Thread-safety: an Adapter holds no per-call state and may be shared. The
// Conn passed to each call belongs to one caller at a time.
type Adapter struct {
	registry  *model.Registry
	marshaler *record.Marshaler
	resolver  *join.Resolver
	logger    *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger for dispatch and marshaling diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates an Adapter over reg.
func New(reg *model.Registry, opts ...Option) *Adapter {
	a := &Adapter{
		registry: reg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.marshaler = record.NewMarshaler(a.logger)
	a.resolver = join.NewResolver(reg, a.marshaler, a.logger)
	return a
}

// Registry returns the model registry the adapter resolves models in.
func (a *Adapter) Registry() *model.Registry {
	return a.registry
}

// Result is the outcome of Execute. Exactly one field is meaningful for a
// given operation: Records for find, join and fetched batch writes; Record
// for a fetched create; Scalar for count, sum and avg.
type Result struct {
	Records []record.Record
	Record  record.Record
	Scalar  any
}

// Execute validates q and dispatches it to the matching operation.
func (a *Adapter) Execute(ctx context.Context, conn Conn, q stage3.Query) (Result, error) {
	if err := stage3.Validate(q); err != nil {
		return Result{}, err
	}
	a.logger.Debug("execute", "method", q.Method(), "model", q.Model())

	switch query := q.(type) {
	case stage3.Create:
		rec, err := a.Create(ctx, conn, query)
		return Result{Record: rec}, err
	case stage3.CreateEach:
		recs, err := a.CreateEach(ctx, conn, query)
		return Result{Records: recs}, err
	case stage3.Find:
		recs, err := a.Find(ctx, conn, query)
		return Result{Records: recs}, err
	case stage3.Update:
		recs, err := a.Update(ctx, conn, query)
		return Result{Records: recs}, err
	case stage3.Destroy:
		recs, err := a.Destroy(ctx, conn, query)
		return Result{Records: recs}, err
	case stage3.Count:
		n, err := a.Count(ctx, conn, query)
		return Result{Scalar: n}, err
	case stage3.Sum:
		n, err := a.Sum(ctx, conn, query)
		return Result{Scalar: n}, err
	case stage3.Avg:
		n, err := a.Avg(ctx, conn, query)
		return Result{Scalar: n}, err
	case stage3.Join:
		recs, err := a.Join(ctx, conn, query)
		return Result{Records: recs}, err
	}
	return Result{}, dberr.Consistency(dberr.CodeMalformedQuery, "unsupported query type %T", q)
}

// model resolves an identity. A miss means the registry and the query are
// out of sync.
func (a *Adapter) model(identity string) (*model.Model, error) {
	m, ok := a.registry.ByIdentity(identity)
	if !ok {
		return nil, dberr.Consistency(dberr.CodeUnknownModel, "unknown model %q", identity)
	}
	return m, nil
}

// native copies values and converts the copy to column-keyed native values.
func (a *Adapter) native(values map[string]any, m *model.Model) (record.Record, error) {
	rec := make(record.Record, len(values))
	for k, v := range values {
		rec[k] = v
	}
	if err := a.marshaler.ToNative(rec, m); err != nil {
		return nil, err
	}
	return rec, nil
}

// selectByKeys reads full rows for keys, in chunks, ordered by key within
// each chunk, and converts them to logical records.
func (a *Adapter) selectByKeys(ctx context.Context, conn Conn, m *model.Model, keys []any) ([]record.Record, error) {
	out := []record.Record{}
	for _, chunk := range chunks(keys) {
		stmt, err := querysql.SelectByKeys(m, chunk)
		if err != nil {
			return nil, err
		}
		rows, err := conn.Query(ctx, stmt)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	a.toLogical(out, m)
	return out, nil
}

func (a *Adapter) toLogical(rows []record.Record, m *model.Model) {
	for _, row := range rows {
		a.marshaler.ToLogical(row, m)
	}
}

func chunks(keys []any) [][]any {
	var out [][]any
	for start := 0; start < len(keys); start += keyChunk {
		out = append(out, keys[start:min(start+keyChunk, len(keys))])
	}
	return out
}

package adapter

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/querysql"
	"github.com/roach88/litequery/internal/record"
	"github.com/roach88/litequery/internal/stage3"
	"github.com/roach88/litequery/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testRegistry(t *testing.T) *model.Registry {
	t.Helper()
	user, err := model.New("user", "user", "id",
		model.Attribute{Name: "id", Type: model.TypeNumber, AutoIncrement: true},
		model.Attribute{Name: "name", Required: true},
		model.Attribute{Name: "email", Unique: true},
		model.Attribute{Name: "age", Type: model.TypeNumber},
		model.Attribute{Name: "active", Type: model.TypeBoolean},
		model.Attribute{Name: "meta", Type: model.TypeJSON},
	)
	require.NoError(t, err)
	pet, err := model.New("pet", "pet", "id",
		model.Attribute{Name: "id", Type: model.TypeNumber, AutoIncrement: true},
		model.Attribute{Name: "name"},
		model.Attribute{Name: "owner", Type: model.TypeNumber, ForeignKey: true},
	)
	require.NoError(t, err)
	return model.NewRegistry().MustRegister(user, pet)
}

// setupAdapter opens a temp database with every test model defined.
func setupAdapter(t *testing.T) (*Adapter, *store.Conn) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "adapter.db"),
		store.WithLogger(discard),
		store.WithStatementLog(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	conn, err := s.Lease(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Release() })

	a := New(testRegistry(t), WithLogger(discard))
	for _, m := range a.Registry().Models() {
		require.NoError(t, a.DefineModel(ctx, conn, m.Identity))
	}
	return a, conn
}

func seedUsers(t *testing.T, a *Adapter, conn *store.Conn) {
	t.Helper()
	_, err := a.CreateEach(context.Background(), conn, stage3.CreateEach{
		Using: "user",
		NewRecords: []map[string]any{
			{"name": "alice", "email": "a@x", "age": 31, "active": true},
			{"name": "bob", "email": "b@x", "age": 25, "active": false},
			{"name": "carol", "email": "c@x", "age": 40, "active": true},
		},
	})
	require.NoError(t, err)
}

func countUsers(t *testing.T, a *Adapter, conn *store.Conn) int64 {
	t.Helper()
	n, err := a.Count(context.Background(), conn, stage3.Count{Using: "user"})
	require.NoError(t, err)
	return n
}

func TestCreate_Fetch(t *testing.T) {
	a, conn := setupAdapter(t)

	rec, err := a.Create(context.Background(), conn, stage3.Create{
		Using: "user",
		NewRecord: map[string]any{
			"name":   "alice",
			"age":    31,
			"active": true,
			"meta":   map[string]any{"tier": "gold", "score": 7},
		},
		Meta: stage3.Meta{Fetch: true},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), rec["id"])
	assert.Equal(t, "alice", rec["name"])
	assert.Equal(t, int64(31), rec["age"])
	assert.Equal(t, true, rec["active"])
	assert.Equal(t, map[string]any{"tier": "gold", "score": int64(7)}, rec["meta"])
	assert.Nil(t, rec["email"])
}

func TestCreate_NoFetch(t *testing.T) {
	a, conn := setupAdapter(t)

	input := map[string]any{"name": "alice", "active": true}
	rec, err := a.Create(context.Background(), conn, stage3.Create{Using: "user", NewRecord: input})
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, map[string]any{"name": "alice", "active": true}, input, "caller values are not mutated")
	assert.Equal(t, int64(1), countUsers(t, a, conn))
}

func TestCreate_InvalidPK(t *testing.T) {
	a, conn := setupAdapter(t)
	before := len(conn.Statements())

	_, err := a.Create(context.Background(), conn, stage3.Create{
		Using:     "user",
		NewRecord: map[string]any{"id": true, "name": "alice"},
	})
	require.Error(t, err)
	assert.Equal(t, dberr.KindMalformed, dberr.KindOf(err))
	assert.Equal(t, dberr.CodeInvalidPK, dberr.CodeOf(err))
	assert.Len(t, conn.Statements(), before, "rejected before touching the database")
}

func TestCreate_NotUnique(t *testing.T) {
	a, conn := setupAdapter(t)
	ctx := context.Background()

	_, err := a.Create(ctx, conn, stage3.Create{Using: "user", NewRecord: map[string]any{"name": "a", "email": "dup@x"}})
	require.NoError(t, err)

	_, err = a.Create(ctx, conn, stage3.Create{
		Using:     "user",
		NewRecord: map[string]any{"name": "b", "email": "dup@x"},
		Meta:      stage3.Meta{Fetch: true},
	})
	require.Error(t, err)
	assert.True(t, dberr.IsNotUnique(err))
	assert.NotEqual(t, dberr.KindViolation, dberr.KindOf(err))
	assert.Equal(t, []string{"email"}, dberr.ColumnsOf(err))
	assert.Equal(t, store.TxIdle, conn.Tx().State())
}

func TestCreate_UnknownModel(t *testing.T) {
	a, conn := setupAdapter(t)

	_, err := a.Create(context.Background(), conn, stage3.Create{Using: "ghost", NewRecord: map[string]any{}})
	assert.True(t, dberr.IsConsistencyViolation(err))
	assert.Equal(t, dberr.CodeUnknownModel, dberr.CodeOf(err))
}

func TestCreateEach_ContiguousKeys(t *testing.T) {
	a, conn := setupAdapter(t)

	recs, err := a.CreateEach(context.Background(), conn, stage3.CreateEach{
		Using:      "user",
		NewRecords: []map[string]any{{"name": "A"}, {"name": "B"}, {"name": "C"}},
		Meta:       stage3.Meta{Fetch: true},
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	first := recs[0]["id"].(int64)
	for i, rec := range recs {
		assert.Equal(t, first+int64(i), rec["id"])
	}
	assert.Equal(t, []any{"A", "B", "C"}, []any{recs[0]["name"], recs[1]["name"], recs[2]["name"]})
}

func TestCreateEach_ContiguousKeysAcrossBatches(t *testing.T) {
	a, conn := setupAdapter(t)

	rows := make([]map[string]any, 600)
	for i := range rows {
		rows[i] = map[string]any{"name": "n", "age": i}
	}
	recs, err := a.CreateEach(context.Background(), conn, stage3.CreateEach{
		Using:      "user",
		NewRecords: rows,
		Meta:       stage3.Meta{Fetch: true},
	})
	require.NoError(t, err)
	require.Len(t, recs, 600)
	for i, rec := range recs {
		assert.Equal(t, int64(i+1), rec["id"])
		assert.Equal(t, int64(i), rec["age"])
	}
}

func TestCreateEach_ExplicitKeysKeepInputOrder(t *testing.T) {
	a, conn := setupAdapter(t)

	recs, err := a.CreateEach(context.Background(), conn, stage3.CreateEach{
		Using:      "user",
		NewRecords: []map[string]any{{"id": 10, "name": "ten"}, {"id": 5, "name": "five"}},
		Meta:       stage3.Meta{Fetch: true},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(10), recs[0]["id"])
	assert.Equal(t, int64(5), recs[1]["id"])
}

func TestCreateEach_MixedKeys(t *testing.T) {
	a, conn := setupAdapter(t)

	recs, err := a.CreateEach(context.Background(), conn, stage3.CreateEach{
		Using:      "user",
		NewRecords: []map[string]any{{"id": 20, "name": "twenty"}, {"name": "next"}},
		Meta:       stage3.Meta{Fetch: true},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(20), recs[0]["id"])
	assert.Equal(t, int64(21), recs[1]["id"])
}

func TestCreateEach_RollsBackOnFailure(t *testing.T) {
	a, conn := setupAdapter(t)

	_, err := a.CreateEach(context.Background(), conn, stage3.CreateEach{
		Using: "user",
		NewRecords: []map[string]any{
			{"id": 1, "name": "a", "email": "same@x"},
			{"name": "b", "email": "same@x"},
		},
	})
	require.Error(t, err)
	assert.True(t, dberr.IsNotUnique(err))
	assert.Equal(t, int64(0), countUsers(t, a, conn), "no partial writes")
}

func TestCreateEach_Empty(t *testing.T) {
	a, conn := setupAdapter(t)
	before := len(conn.Statements())

	recs, err := a.CreateEach(context.Background(), conn, stage3.CreateEach{Using: "user", Meta: stage3.Meta{Fetch: true}})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
	assert.Len(t, conn.Statements(), before)
}

func TestFind_AllRowsPresent(t *testing.T) {
	a, conn := setupAdapter(t)
	seedUsers(t, a, conn)

	recs, err := a.Find(context.Background(), conn, stage3.Find{
		Using:    "user",
		Criteria: stage3.Criteria{Limit: stage3.Int64(10)},
	})
	require.NoError(t, err)

	var names []any
	for _, rec := range recs {
		names = append(names, rec["name"])
	}
	// No sort was requested, so only membership is defined.
	assert.ElementsMatch(t, []any{"alice", "bob", "carol"}, names)
}

func TestFind_Criteria(t *testing.T) {
	a, conn := setupAdapter(t)
	seedUsers(t, a, conn)

	recs, err := a.Find(context.Background(), conn, stage3.Find{
		Using: "user",
		Criteria: stage3.Criteria{
			Where: stage3.Or{Predicates: []stage3.Predicate{
				stage3.Compare{Column: "age", Op: stage3.OpGte, Value: 31},
				stage3.Compare{Column: "name", Op: stage3.OpStartsWith, Value: "b"},
			}},
			Select: []string{"name"},
			Sort:   []stage3.SortClause{{Attr: "age", Direction: stage3.Desc}},
			Limit:  stage3.Int64(2),
			Skip:   1,
		},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, record.Record{"id": int64(1), "name": "alice"}, recs[0])
	assert.Equal(t, record.Record{"id": int64(2), "name": "bob"}, recs[1])
}

func TestFind_CaseSensitivePatterns(t *testing.T) {
	a, conn := setupAdapter(t)
	seedUsers(t, a, conn)
	ctx := context.Background()

	recs, err := a.Find(ctx, conn, stage3.Find{
		Using: "user",
		Criteria: stage3.Criteria{
			Where: stage3.Compare{Column: "name", Op: stage3.OpContains, Value: "AR"},
			Limit: stage3.Int64(10),
		},
	})
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = a.Find(ctx, conn, stage3.Find{
		Using: "user",
		Criteria: stage3.Criteria{
			Where: stage3.Compare{Column: "name", Op: stage3.OpContains, Value: "ar"},
			Limit: stage3.Int64(10),
		},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "carol", recs[0]["name"])
}

func TestFind_MissingLimit(t *testing.T) {
	a, conn := setupAdapter(t)

	_, err := a.Find(context.Background(), conn, stage3.Find{Using: "user"})
	assert.True(t, dberr.IsConsistencyViolation(err))
	assert.Equal(t, dberr.CodeMissingLimit, dberr.CodeOf(err))
}

func TestUpdate(t *testing.T) {
	a, conn := setupAdapter(t)
	seedUsers(t, a, conn)
	ctx := context.Background()

	recs, err := a.Update(ctx, conn, stage3.Update{
		Using:       "user",
		Criteria:    stage3.Criteria{Where: stage3.Compare{Column: "age", Op: stage3.OpGt, Value: 30}},
		ValuesToSet: map[string]any{"active": false},
	})
	require.NoError(t, err)
	assert.Nil(t, recs)

	recs, err = a.Update(ctx, conn, stage3.Update{
		Using:       "user",
		Criteria:    stage3.Criteria{Where: stage3.Eq("active", false)},
		ValuesToSet: map[string]any{"meta": map[string]any{"flag": true}},
		Meta:        stage3.Meta{Fetch: true},
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.Equal(t, false, rec["active"])
		assert.Equal(t, map[string]any{"flag": true}, rec["meta"])
	}
}

func TestUpdate_PrimaryKeyCollision(t *testing.T) {
	a, conn := setupAdapter(t)
	seedUsers(t, a, conn)
	ctx := context.Background()

	_, err := a.Update(ctx, conn, stage3.Update{
		Using:       "user",
		Criteria:    stage3.Criteria{Where: stage3.Eq("active", true)},
		ValuesToSet: map[string]any{"id": 99},
	})
	require.Error(t, err)
	assert.True(t, dberr.IsConsistencyViolation(err))
	assert.Equal(t, dberr.CodePKCollision, dberr.CodeOf(err))

	recs, err := a.Find(ctx, conn, stage3.Find{
		Using:    "user",
		Criteria: stage3.Criteria{Where: stage3.Eq("id", 99), Limit: stage3.Int64(1)},
	})
	require.NoError(t, err)
	assert.Empty(t, recs, "nothing was written")
}

func TestUpdate_PrimaryKeyOfSingleRecord(t *testing.T) {
	a, conn := setupAdapter(t)
	seedUsers(t, a, conn)

	recs, err := a.Update(context.Background(), conn, stage3.Update{
		Using:       "user",
		Criteria:    stage3.Criteria{Where: stage3.Eq("name", "bob")},
		ValuesToSet: map[string]any{"id": 99},
		Meta:        stage3.Meta{Fetch: true},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(99), recs[0]["id"])
	assert.Equal(t, "bob", recs[0]["name"])
}

func TestUpdate_NotUnique(t *testing.T) {
	a, conn := setupAdapter(t)
	seedUsers(t, a, conn)

	_, err := a.Update(context.Background(), conn, stage3.Update{
		Using:       "user",
		Criteria:    stage3.Criteria{Where: stage3.Eq("name", "bob")},
		ValuesToSet: map[string]any{"email": "a@x"},
	})
	require.Error(t, err)
	assert.True(t, dberr.IsNotUnique(err))
	assert.Equal(t, []string{"email"}, dberr.ColumnsOf(err))
}

func TestDestroy(t *testing.T) {
	a, conn := setupAdapter(t)
	seedUsers(t, a, conn)
	ctx := context.Background()

	recs, err := a.Destroy(ctx, conn, stage3.Destroy{
		Using:    "user",
		Criteria: stage3.Criteria{Where: stage3.Eq("active", true)},
		Meta:     stage3.Meta{Fetch: true},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "alice", recs[0]["name"])
	assert.Equal(t, "carol", recs[1]["name"])
	assert.Equal(t, int64(1), countUsers(t, a, conn))

	recs, err = a.Destroy(ctx, conn, stage3.Destroy{Using: "user"})
	require.NoError(t, err)
	assert.Nil(t, recs)
	assert.Equal(t, int64(0), countUsers(t, a, conn))

	recs, err = a.Destroy(ctx, conn, stage3.Destroy{Using: "user", Meta: stage3.Meta{Fetch: true}})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestAggregates(t *testing.T) {
	a, conn := setupAdapter(t)
	ctx := context.Background()
	adults := stage3.Criteria{Where: stage3.Compare{Column: "age", Op: stage3.OpGt, Value: 26}}

	sum, err := a.Sum(ctx, conn, stage3.Sum{Using: "user", NumericAttrName: "age"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum, "empty set sums to 0")

	avg, err := a.Avg(ctx, conn, stage3.Avg{Using: "user", NumericAttrName: "age"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg, "empty set averages to 0")

	seedUsers(t, a, conn)

	n, err := a.Count(ctx, conn, stage3.Count{Using: "user", Criteria: adults})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	sum, err = a.Sum(ctx, conn, stage3.Sum{Using: "user", Criteria: adults, NumericAttrName: "age"})
	require.NoError(t, err)
	assert.Equal(t, 71.0, sum)

	avg, err = a.Avg(ctx, conn, stage3.Avg{Using: "user", Criteria: adults, NumericAttrName: "age"})
	require.NoError(t, err)
	assert.Equal(t, 35.5, avg)

	n, err = a.Count(ctx, conn, stage3.Count{Using: "user", Criteria: stage3.Criteria{Limit: stage3.Int64(2)}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "limit narrows the counted rows")
}

func TestDefineDropSetSequence(t *testing.T) {
	a, conn := setupAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.SetSequence(ctx, conn, "user", 5), "no sequence row yet is a no-op")

	_, err := a.Create(ctx, conn, stage3.Create{Using: "user", NewRecord: map[string]any{"name": "a"}})
	require.NoError(t, err)
	require.NoError(t, a.SetSequence(ctx, conn, "user", 100))

	rec, err := a.Create(ctx, conn, stage3.Create{
		Using:     "user",
		NewRecord: map[string]any{"name": "b"},
		Meta:      stage3.Meta{Fetch: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), rec["id"])

	require.NoError(t, a.Drop(ctx, conn, "user"))
	require.NoError(t, a.Drop(ctx, conn, "user"), "drop is idempotent")

	err = a.Define(ctx, conn, "", nil)
	assert.Equal(t, dberr.KindMalformed, dberr.KindOf(err))
}

func TestSetSequence_NoSequenceTable(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "plain.db"),
		store.WithLogger(discard),
		store.WithStatementLog(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	conn, err := s.Lease(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Release() })

	a := New(model.NewRegistry(), WithLogger(discard))
	require.NoError(t, a.Define(ctx, conn, "plain", []model.ColumnSpec{
		{Name: "id", Type: "TEXT", PrimaryKey: true},
	}))
	require.NoError(t, a.SetSequence(ctx, conn, "plain", 1))

	log := conn.Statements()
	last := log[len(log)-1]
	assert.Equal(t, querysql.SequenceTableExists().SQL, last.SQL, "no UPDATE without sqlite_sequence")
}

func TestFind_RefDatesFromSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "events.db"), store.WithLogger(discard))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	conn, err := s.Lease(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Release() })

	event, err := model.New("event", "event", "id",
		model.Attribute{Name: "id", Type: model.TypeNumber, AutoIncrement: true},
		model.Attribute{Name: "at", Type: model.TypeRef},
	)
	require.NoError(t, err)
	a := New(model.NewRegistry().MustRegister(event), WithLogger(discard))
	require.NoError(t, a.DefineModel(ctx, conn, "event"))

	_, err = a.CreateEach(ctx, conn, stage3.CreateEach{
		Using: "event",
		NewRecords: []map[string]any{
			{"at": time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)},
			{"at": "2024-01-02 10:00:00"},
			{"at": "2024-01-02"},
		},
	})
	require.NoError(t, err)
	_, err = conn.Exec(ctx, querysql.Statement{SQL: `INSERT INTO "event" ("at") VALUES (CURRENT_TIMESTAMP)`})
	require.NoError(t, err)

	recs, err := a.Find(ctx, conn, stage3.Find{
		Using:    "event",
		Criteria: stage3.Criteria{Sort: []stage3.SortClause{{Attr: "id", Direction: stage3.Asc}}, Limit: stage3.Int64(10)},
	})
	require.NoError(t, err)
	require.Len(t, recs, 4)

	want := []time.Time{
		time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	for i, w := range want {
		got, ok := recs[i]["at"].(time.Time)
		require.True(t, ok, "record %d: got %T", i, recs[i]["at"])
		assert.True(t, got.Equal(w), "record %d: got %v", i, got)
	}
	now, ok := recs[3]["at"].(time.Time)
	require.True(t, ok, "CURRENT_TIMESTAMP: got %T", recs[3]["at"])
	assert.WithinDuration(t, time.Now(), now, time.Minute)
}

func TestJoin(t *testing.T) {
	a, conn := setupAdapter(t)
	seedUsers(t, a, conn)
	ctx := context.Background()

	_, err := a.CreateEach(ctx, conn, stage3.CreateEach{
		Using:      "pet",
		NewRecords: []map[string]any{{"name": "rex", "owner": 1}, {"name": "fido", "owner": 3}},
	})
	require.NoError(t, err)

	recs, err := a.Join(ctx, conn, stage3.Join{
		Using:    "user",
		Criteria: stage3.Criteria{Sort: []stage3.SortClause{{Attr: "id", Direction: stage3.Asc}}, Limit: stage3.Int64(10)},
		Associations: []stage3.Association{
			{Alias: "pets", Model: "pet", Cardinality: stage3.ToMany, ChildKey: "owner"},
		},
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Len(t, recs[0]["pets"], 1)
	assert.Empty(t, recs[1]["pets"])
	assert.Len(t, recs[2]["pets"], 1)
}

func TestExecute(t *testing.T) {
	a, conn := setupAdapter(t)
	ctx := context.Background()

	res, err := a.Execute(ctx, conn, stage3.Create{
		Using:     "user",
		NewRecord: map[string]any{"name": "alice"},
		Meta:      stage3.Meta{Fetch: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Record["name"])

	res, err = a.Execute(ctx, conn, stage3.Count{Using: "user"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Scalar)

	res, err = a.Execute(ctx, conn, stage3.Find{Using: "user", Criteria: stage3.Criteria{Limit: stage3.Int64(5)}})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)

	_, err = a.Execute(ctx, conn, stage3.Find{Using: "user"})
	assert.Equal(t, dberr.CodeMissingLimit, dberr.CodeOf(err))

	_, err = a.Execute(ctx, conn, stage3.Update{Using: "user"})
	assert.Equal(t, dberr.KindMalformed, dberr.KindOf(err))
}

func TestExecute_DecodedQuery(t *testing.T) {
	a, conn := setupAdapter(t)
	seedUsers(t, a, conn)

	q, err := stage3.DecodeYAML([]byte(`
method: avg
using: user
numericAttrName: age
criteria:
  where:
    active: true
`))
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), conn, q)
	require.NoError(t, err)
	assert.Equal(t, 35.5, res.Scalar)
}

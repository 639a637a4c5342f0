package stage3

// Query is a fully normalized stage-three query.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the dispatcher.
//
// Query types:
//   - Create, CreateEach: insert one or many records
//   - Find: read records matching criteria
//   - Update, Destroy: write records matching criteria
//   - Count, Sum, Avg: scalar aggregates over matching records
//   - Join: find with declared associations populated
type Query interface {
	queryNode() // Marker method - seals interface to this package

	// Method returns the operation kind.
	Method() Method

	// Model returns the identity of the target model.
	Model() string
}

// Method names a stage-three operation.
type Method string

const (
	MethodCreate     Method = "create"
	MethodCreateEach Method = "createEach"
	MethodFind       Method = "find"
	MethodUpdate     Method = "update"
	MethodDestroy    Method = "destroy"
	MethodCount      Method = "count"
	MethodSum        Method = "sum"
	MethodAvg        Method = "avg"
	MethodJoin       Method = "join"
)

// Meta carries per-call options for write operations.
type Meta struct {
	// Fetch requests the written (or destroyed) records back.
	Fetch bool
}

// Create inserts a single record.
//
// NewRecord is keyed by attribute name. A nil or absent primary key lets the
// database assign one.
type Create struct {
	Using     string
	NewRecord map[string]any
	Meta      Meta
}

func (Create) queryNode() {}
func (Create) Method() Method { return MethodCreate }
func (q Create) Model() string { return q.Using }

// CreateEach inserts many records as one batch.
type CreateEach struct {
	Using      string
	NewRecords []map[string]any
	Meta       Meta
}

func (CreateEach) queryNode() {}
func (CreateEach) Method() Method { return MethodCreateEach }
func (q CreateEach) Model() string { return q.Using }

// Find reads records matching Criteria. Criteria.Limit must be set.
type Find struct {
	Using    string
	Criteria Criteria
}

func (Find) queryNode() {}
func (Find) Method() Method { return MethodFind }
func (q Find) Model() string { return q.Using }

// Update sets ValuesToSet on every record matching Criteria.
type Update struct {
	Using       string
	Criteria    Criteria
	ValuesToSet map[string]any
	Meta        Meta
}

func (Update) queryNode() {}
func (Update) Method() Method { return MethodUpdate }
func (q Update) Model() string { return q.Using }

// Destroy deletes every record matching Criteria.
type Destroy struct {
	Using    string
	Criteria Criteria
	Meta     Meta
}

func (Destroy) queryNode() {}
func (Destroy) Method() Method { return MethodDestroy }
func (q Destroy) Model() string { return q.Using }

// Count returns the number of records matching Criteria.
type Count struct {
	Using    string
	Criteria Criteria
}

func (Count) queryNode() {}
func (Count) Method() Method { return MethodCount }
func (q Count) Model() string { return q.Using }

// Sum totals NumericAttrName over records matching Criteria.
type Sum struct {
	Using           string
	Criteria        Criteria
	NumericAttrName string
}

func (Sum) queryNode() {}
func (Sum) Method() Method { return MethodSum }
func (q Sum) Model() string { return q.Using }

// Avg averages NumericAttrName over records matching Criteria.
type Avg struct {
	Using           string
	Criteria        Criteria
	NumericAttrName string
}

func (Avg) queryNode() {}
func (Avg) Method() Method { return MethodAvg }
func (q Avg) Model() string { return q.Using }

// Join reads records matching Criteria and populates each declared
// association under its alias.
type Join struct {
	Using        string
	Criteria     Criteria
	Associations []Association
}

func (Join) queryNode() {}
func (Join) Method() Method { return MethodJoin }
func (q Join) Model() string { return q.Using }

// Cardinality is the shape an association is attached with.
type Cardinality string

const (
	// ToOne attaches a single record or nil.
	ToOne Cardinality = "one"
	// ToMany attaches a list, possibly empty.
	ToMany Cardinality = "many"
)

// Association declares a related model to populate on each parent record.
//
// Key matching:
//
//	parent[ParentKey] == child[ChildKey]
//
// ParentKey defaults to the parent's primary key and ChildKey to the
// child's primary key, so a to-one "belongs to" association only sets
// ParentKey (the foreign key attribute on the parent) and a to-many
// "has many" association only sets ChildKey (the foreign key attribute on
// the child).
//
// With Through set, the match runs via a junction model:
//
//	parent[ParentKey] == junction[Through.ParentKey]
//	junction[Through.ChildKey] == child[ChildKey]
type Association struct {
	// Alias is the parent attribute the related records attach under.
	Alias string

	// Model is the identity of the related model.
	Model string

	Cardinality Cardinality

	ParentKey string
	ChildKey  string

	// Through names a junction model for many-to-many associations.
	Through *Through

	// Criteria filters, sorts and paginates the related records. When it
	// carries a limit or skip, one child statement runs per parent.
	Criteria *Criteria
}

// Through describes the junction model of a many-to-many association.
type Through struct {
	Model     string
	ParentKey string
	ChildKey  string
}

// Paginated reports whether the association requests per-parent pagination.
func (a Association) Paginated() bool {
	return a.Criteria != nil && (a.Criteria.Limit != nil || a.Criteria.Skip > 0)
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// SortClause orders results by one attribute.
type SortClause struct {
	Attr      string
	Direction Direction
}

// Criteria is the where-predicate tree plus projection, sort and pagination.
type Criteria struct {
	// Where filters records. Nil matches every record.
	Where Predicate

	// Select lists the attributes to return. Empty selects every attribute;
	// the primary key is always included.
	Select []string

	// Sort is applied in list order, primary sort first.
	Sort []SortClause

	// Limit caps the number of rows. Required on find.
	Limit *int64

	Skip int64
}

// Int64 returns a pointer to n, for Criteria.Limit literals.
func Int64(n int64) *int64 {
	return &n
}

// WithWhere returns a copy of q with its criteria's Where replaced. The
// second result is false for operations without criteria (create,
// createEach).
func WithWhere(q Query, where Predicate) (Query, bool) {
	switch v := q.(type) {
	case Find:
		v.Criteria.Where = where
		return v, true
	case Update:
		v.Criteria.Where = where
		return v, true
	case Destroy:
		v.Criteria.Where = where
		return v, true
	case Count:
		v.Criteria.Where = where
		return v, true
	case Sum:
		v.Criteria.Where = where
		return v, true
	case Avg:
		v.Criteria.Where = where
		return v, true
	case Join:
		v.Criteria.Where = where
		return v, true
	}
	return q, false
}

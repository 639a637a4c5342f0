package stage3

import (
	"fmt"

	"github.com/roach88/litequery/internal/dberr"
)

// Validate checks that q is well formed.
//
// Structural problems (missing payload, negative limit, non-list operand for
// in/nin) are Malformed. Caller contract breaches that indicate upstream
// normalization did not run (unknown operator, find without a limit) are
// ConsistencyViolation.
//
// Validate does not consult the model registry; attribute names are checked
// when the statement is compiled.
func Validate(q Query) error {
	if q == nil {
		return malformed("query is nil")
	}
	if q.Model() == "" {
		return malformed("%s: using is required", q.Method())
	}

	switch query := q.(type) {
	case Create:
		if query.NewRecord == nil {
			return malformed("create: newRecord is required")
		}
	case CreateEach:
		for i, rec := range query.NewRecords {
			if rec == nil {
				return malformed("createEach: newRecords[%d] is nil", i)
			}
		}
	case Find:
		if query.Criteria.Limit == nil {
			return dberr.Consistency(dberr.CodeMissingLimit, "find on %q has no limit", query.Using)
		}
		return validateCriteria(query.Criteria)
	case Update:
		if len(query.ValuesToSet) == 0 {
			return malformed("update: valuesToSet is required")
		}
		return validateCriteria(query.Criteria)
	case Destroy:
		return validateCriteria(query.Criteria)
	case Count:
		return validateCriteria(query.Criteria)
	case Sum:
		if query.NumericAttrName == "" {
			return malformed("sum: numericAttrName is required")
		}
		return validateCriteria(query.Criteria)
	case Avg:
		if query.NumericAttrName == "" {
			return malformed("avg: numericAttrName is required")
		}
		return validateCriteria(query.Criteria)
	case Join:
		if query.Criteria.Limit == nil {
			return dberr.Consistency(dberr.CodeMissingLimit, "join on %q has no limit", query.Using)
		}
		if err := validateCriteria(query.Criteria); err != nil {
			return err
		}
		return validateAssociations(query.Associations)
	}
	return nil
}

func validateCriteria(c Criteria) error {
	if c.Limit != nil && *c.Limit < 0 {
		return malformed("limit must not be negative, got %d", *c.Limit)
	}
	if c.Skip < 0 {
		return malformed("skip must not be negative, got %d", c.Skip)
	}
	for i, s := range c.Sort {
		if s.Attr == "" {
			return malformed("sort[%d]: attribute is required", i)
		}
		if s.Direction != Asc && s.Direction != Desc {
			return malformed("sort[%d]: invalid direction %q", i, s.Direction)
		}
	}
	return ValidatePredicate(c.Where)
}

// ValidatePredicate checks every leaf of p.
func ValidatePredicate(p Predicate) error {
	var err error
	Walk(p, func(c Compare) {
		if err != nil {
			return
		}
		err = validateCompare(c)
	})
	return err
}

func validateCompare(c Compare) error {
	if c.Column == "" {
		return malformed("comparison without a column")
	}
	if !c.Op.Known() {
		return dberr.Consistency(dberr.CodeUnknownOperator, "unknown operator %q on %q", c.Op, c.Column)
	}
	switch {
	case c.Op == OpIn || c.Op == OpNin:
		if _, ok := AsList(c.Value); !ok {
			return malformed("%s on %q needs a list, got %T", c.Op, c.Column, c.Value)
		}
	case c.Op.IsPattern():
		if _, ok := c.Value.(string); !ok {
			return malformed("%s on %q needs a string, got %T", c.Op, c.Column, c.Value)
		}
	}
	return nil
}

func validateAssociations(assocs []Association) error {
	seen := make(map[string]bool, len(assocs))
	for i, a := range assocs {
		where := fmt.Sprintf("associations[%d]", i)
		if a.Alias == "" {
			return malformed("%s: alias is required", where)
		}
		if seen[a.Alias] {
			return malformed("%s: duplicate alias %q", where, a.Alias)
		}
		seen[a.Alias] = true
		if a.Model == "" {
			return malformed("%s: model is required", where)
		}
		switch a.Cardinality {
		case ToOne, ToMany:
		default:
			return malformed("%s: invalid cardinality %q", where, a.Cardinality)
		}
		if a.Through != nil {
			if a.Cardinality != ToMany {
				return malformed("%s: a junction association must be to-many", where)
			}
			if a.Through.Model == "" || a.Through.ParentKey == "" || a.Through.ChildKey == "" {
				return malformed("%s: through needs model, parentKey and childKey", where)
			}
		}
		if a.Criteria != nil {
			if err := validateCriteria(*a.Criteria); err != nil {
				return fmt.Errorf("%s: %w", where, err)
			}
		}
	}
	return nil
}

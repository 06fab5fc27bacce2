package backend

import (
	"fmt"

	dErrors "studygenie/pkg/domain-errors"
)

// Operation selects what Execute does with a Query.
type Operation int

const (
	OpSelect Operation = iota
	OpInsert
	OpUpdate
)

func (o Operation) String() string {
	switch o {
	case OpSelect:
		return "select"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Comparator is a filter predicate.
type Comparator string

const (
	CmpEq  Comparator = "eq"
	CmpGte Comparator = "gte"
)

// Filter restricts rows by comparing Column with Value.
type Filter struct {
	Column     string
	Comparator Comparator
	Value      any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Comparator: CmpEq, Value: value}
}

// Gte builds an inclusive lower-bound filter.
func Gte(column string, value any) Filter {
	return Filter{Column: column, Comparator: CmpGte, Value: value}
}

// Order sorts results by Column.
type Order struct {
	Column     string
	Descending bool
}

// Desc orders by column, newest/largest first.
func Desc(column string) Order {
	return Order{Column: column, Descending: true}
}

// Embed joins one row of another collection into each result row, stored under
// the key Collection. The joined row matches Collection.ForeignKey = LocalKey.
type Embed struct {
	Collection string
	LocalKey   string
	ForeignKey string
	Columns    []string
}

// Query describes one row operation: collection, filters,
// ordering and, for writes, the values to store. Adapters translate it into
// their own query language.
type Query struct {
	Collection string
	Operation  Operation
	Filters    []Filter
	Orders     []Order
	Embeds     []Embed
	Values     Row
}

// Validate rejects queries no adapter can run safely: updates without filters
// would touch every row of a collection.
func (q Query) Validate() error {
	if q.Collection == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "query collection required")
	}
	for _, f := range q.Filters {
		if f.Column == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "filter column required")
		}
		if f.Comparator != CmpEq && f.Comparator != CmpGte {
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unsupported comparator %q", f.Comparator))
		}
	}
	switch q.Operation {
	case OpSelect:
		if len(q.Values) > 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "select does not take values")
		}
	case OpInsert:
		if len(q.Values) == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "insert requires values")
		}
	case OpUpdate:
		if len(q.Values) == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "update requires values")
		}
		if len(q.Filters) == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "update requires at least one filter")
		}
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown operation")
	}
	return nil
}

package postgres

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"studygenie/internal/backend"
)

// statement is a parameterized SQL text with its arguments.
type statement struct {
	sql  string
	args []any
}

type builder struct {
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func quote(ident string) string {
	return pq.QuoteIdentifier(ident)
}

// buildQuery renders q as a single statement. Selects read from alias t and
// join every embed as e0, e1, ... so embedded rows come back as JSON objects
// named after their collection.
func buildQuery(q backend.Query) (statement, error) {
	b := &builder{}
	var sql string
	switch q.Operation {
	case backend.OpSelect:
		sql = b.selectSQL(q)
	case backend.OpInsert:
		sql = b.insertSQL(q)
	case backend.OpUpdate:
		sql = b.updateSQL(q)
	default:
		return statement{}, fmt.Errorf("unsupported operation %s", q.Operation)
	}
	return statement{sql: sql, args: b.args}, nil
}

func (b *builder) selectSQL(q backend.Query) string {
	var sb strings.Builder
	sb.WriteString("SELECT t.*")
	for i, e := range q.Embeds {
		alias := fmt.Sprintf("e%d", i)
		sb.WriteString(", ")
		sb.WriteString(embedColumn(alias, e))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(quote(q.Collection))
	sb.WriteString(" t")
	for i, e := range q.Embeds {
		alias := fmt.Sprintf("e%d", i)
		fmt.Fprintf(&sb, " LEFT JOIN %s %s ON %s.%s = t.%s",
			quote(e.Collection), alias, alias, quote(e.ForeignKey), quote(e.LocalKey))
	}
	sb.WriteString(b.whereSQL("t.", q.Filters))
	if len(q.Orders) > 0 {
		parts := make([]string, 0, len(q.Orders))
		for _, o := range q.Orders {
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			parts = append(parts, "t."+quote(o.Column)+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	return sb.String()
}

func embedColumn(alias string, e backend.Embed) string {
	var obj string
	if len(e.Columns) == 0 {
		obj = "to_jsonb(" + alias + ")"
	} else {
		pairs := make([]string, 0, len(e.Columns))
		for _, col := range e.Columns {
			pairs = append(pairs, pq.QuoteLiteral(col)+", "+alias+"."+quote(col))
		}
		obj = "jsonb_build_object(" + strings.Join(pairs, ", ") + ")"
	}
	return fmt.Sprintf("CASE WHEN %s.%s IS NULL THEN NULL ELSE %s END AS %s",
		alias, quote(e.ForeignKey), obj, quote(e.Collection))
}

func (b *builder) whereSQL(prefix string, filters []backend.Filter) string {
	if len(filters) == 0 {
		return ""
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		op := "="
		if f.Comparator == backend.CmpGte {
			op = ">="
		}
		parts = append(parts, prefix+quote(f.Column)+" "+op+" "+b.bind(f.Value))
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

func (b *builder) insertSQL(q backend.Query) string {
	cols := sortedKeys(q.Values)
	names := make([]string, 0, len(cols))
	params := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, quote(c))
		params = append(params, b.bind(q.Values[c]))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quote(q.Collection), strings.Join(names, ", "), strings.Join(params, ", "))
}

func (b *builder) updateSQL(q backend.Query) string {
	cols := sortedKeys(q.Values)
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		sets = append(sets, quote(c)+" = "+b.bind(q.Values[c]))
	}
	return fmt.Sprintf("UPDATE %s SET %s%s RETURNING *",
		quote(q.Collection), strings.Join(sets, ", "), b.whereSQL("", q.Filters))
}

// buildProvision inserts a profile row for identityID unless one exists.
func buildProvision(identityID string, traits map[string]any) statement {
	b := &builder{}
	values := make(map[string]any, len(traits)+1)
	for k, v := range traits {
		values[k] = v
	}
	values["id"] = identityID
	cols := sortedKeys(values)
	names := make([]string, 0, len(cols))
	params := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, quote(c))
		params = append(params, b.bind(values[c]))
	}
	return statement{
		sql: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			quote(profilesTable), strings.Join(names, ", "), strings.Join(params, ", "), quote("id")),
		args: b.args,
	}
}

// buildCall renders a procedure call with named arguments in name order.
func buildCall(procedure string, args map[string]any) statement {
	b := &builder{}
	names := sortedKeys(args)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, quote(n)+" => "+b.bind(args[n]))
	}
	return statement{
		sql:  fmt.Sprintf("SELECT %s(%s)", quote(procedure), strings.Join(parts, ", ")),
		args: b.args,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

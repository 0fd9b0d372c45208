package postgres

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"example.com/backstage/dairy/internal/backend"

	"github.com/pkg/errors"
)

// Every statement is wrapped so the database renders the result as a JSON
// array, keeping this driver's payloads identical to the rest driver's.
const jsonAgg = `SELECT coalesce(json_agg(r), '[]'::json)::text FROM (%s) r`
const jsonAggCTE = `WITH r AS (%s) SELECT coalesce(json_agg(r), '[]'::json)::text FROM r`

var sqlOperators = map[backend.Operator]string{
	backend.OpEq:    "=",
	backend.OpNeq:   "<>",
	backend.OpGt:    ">",
	backend.OpGte:   ">=",
	backend.OpLt:    "<",
	backend.OpLte:   "<=",
	backend.OpILike: "ILIKE",
}

func quoteIdent(name string) (string, error) {
	if err := backend.ValidateIdentifier(name); err != nil {
		return "", err
	}
	return `"` + name + `"`, nil
}

func buildWhere(filters []backend.Filter) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(filters))
	args := make([]interface{}, 0, len(filters))
	for _, f := range filters {
		col, err := quoteIdent(f.Column)
		if err != nil {
			return "", nil, err
		}
		switch f.Operator {
		case backend.OpIs:
			if f.Value != nil {
				return "", nil, fmt.Errorf("is filter on %s only supports null", f.Column)
			}
			clauses = append(clauses, col+" IS NULL")
		case backend.OpIn:
			values, ok := f.Value.([]string)
			if !ok {
				return "", nil, fmt.Errorf("in filter on %s needs a string list", f.Column)
			}
			if len(values) == 0 {
				clauses = append(clauses, "false")
				continue
			}
			clauses = append(clauses, col+"::text IN ?")
			args = append(args, values)
		case backend.OpWithinOrNull:
			r, ok := f.Value.(backend.Range)
			if !ok {
				return "", nil, fmt.Errorf("within filter on %s needs a range", f.Column)
			}
			var bounds []string
			if r.From != nil {
				bounds = append(bounds, col+" >= ?")
				args = append(args, r.From)
			}
			if r.To != nil {
				bounds = append(bounds, col+" <= ?")
				args = append(args, r.To)
			}
			if len(bounds) == 0 {
				return "", nil, fmt.Errorf("within filter on %s needs a bound", f.Column)
			}
			clauses = append(clauses, fmt.Sprintf("(%s IS NULL OR (%s))", col, strings.Join(bounds, " AND ")))
		default:
			op, ok := sqlOperators[f.Operator]
			if !ok {
				return "", nil, fmt.Errorf("unsupported filter operator %q", f.Operator)
			}
			clauses = append(clauses, fmt.Sprintf("%s %s ?", col, op))
			args = append(args, f.Value)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func buildSelect(table string, q backend.Query) (string, []interface{}, error) {
	tbl, err := quoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	where, args, err := buildWhere(q.Filters)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(tbl)
	b.WriteString(where)
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			col, err := quoteIdent(o.Column)
			if err != nil {
				return "", nil, err
			}
			if o.Descending {
				col += " DESC"
			}
			parts = append(parts, col)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return fmt.Sprintf(jsonAgg, b.String()), args, nil
}

// buildInsert turns rows into an INSERT ... SELECT over json_populate_recordset.
// Only columns present in the payload are written so defaults still apply.
func buildInsert(table string, rows interface{}) (string, []interface{}, error) {
	tbl, err := quoteIdent(table)
	if err != nil {
		return "", nil, err
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to marshal rows")
	}
	var objects []map[string]json.RawMessage
	if len(data) > 0 && data[0] == '{' {
		var one map[string]json.RawMessage
		if err := json.Unmarshal(data, &one); err != nil {
			return "", nil, errors.Wrap(err, "rows must be objects")
		}
		objects = []map[string]json.RawMessage{one}
		data, _ = json.Marshal(objects)
	} else if err := json.Unmarshal(data, &objects); err != nil {
		return "", nil, errors.Wrap(err, "rows must be objects")
	}
	if len(objects) == 0 {
		return "", nil, errors.New("nothing to insert")
	}

	seen := map[string]bool{}
	var columns []string
	for _, obj := range objects {
		for k := range obj {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)

	quoted := make([]string, 0, len(columns))
	for _, c := range columns {
		q, err := quoteIdent(c)
		if err != nil {
			return "", nil, err
		}
		quoted = append(quoted, q)
	}
	cols := strings.Join(quoted, ", ")

	stmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM json_populate_recordset(NULL::%s, ?::json) RETURNING *",
		tbl, cols, cols, tbl)
	return fmt.Sprintf(jsonAggCTE, stmt), []interface{}{string(data)}, nil
}

func buildUpdate(table string, filters []backend.Filter, values map[string]interface{}) (string, []interface{}, error) {
	tbl, err := quoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	if len(filters) == 0 {
		return "", nil, errors.New("refusing to update without filters")
	}
	if len(values) == 0 {
		return "", nil, errors.New("nothing to update")
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys)+len(filters))
	for _, k := range keys {
		col, err := quoteIdent(k)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, col+" = ?")
		args = append(args, values[k])
	}

	where, whereArgs, err := buildWhere(filters)
	if err != nil {
		return "", nil, err
	}
	args = append(args, whereArgs...)

	stmt := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", tbl, strings.Join(sets, ", "), where)
	return fmt.Sprintf(jsonAggCTE, stmt), args, nil
}

func buildDelete(table string, filters []backend.Filter) (string, []interface{}, error) {
	tbl, err := quoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	if len(filters) == 0 {
		return "", nil, errors.New("refusing to delete without filters")
	}
	where, args, err := buildWhere(filters)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + tbl + where, args, nil
}

// buildRPC calls fn with named arguments (p_x => ?), in key order
func buildRPC(fn string, params map[string]interface{}) (string, []interface{}, error) {
	name, err := quoteIdent(fn)
	if err != nil {
		return "", nil, err
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	named := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		if err := backend.ValidateIdentifier(k); err != nil {
			return "", nil, err
		}
		named = append(named, k+" => ?")
		args = append(args, params[k])
	}

	call := fmt.Sprintf("SELECT * FROM %s(%s)", name, strings.Join(named, ", "))
	return fmt.Sprintf(jsonAgg, call), args, nil
}

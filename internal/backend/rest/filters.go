package rest

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"example.com/backstage/dairy/internal/backend"
)

// applyFilters encodes filters as PostgREST query parameters (col=op.value)
func applyFilters(params url.Values, filters []backend.Filter) error {
	for _, f := range filters {
		if err := backend.ValidateIdentifier(f.Column); err != nil {
			return err
		}
		value, err := encodeFilter(f)
		if err != nil {
			return err
		}
		if f.Operator == backend.OpWithinOrNull {
			params.Add("or", value)
			continue
		}
		params.Add(f.Column, value)
	}
	return nil
}

func encodeFilter(f backend.Filter) (string, error) {
	switch f.Operator {
	case backend.OpIs:
		if f.Value != nil {
			return "", fmt.Errorf("is filter on %s only supports null", f.Column)
		}
		return "is.null", nil
	case backend.OpIn:
		values, ok := f.Value.([]string)
		if !ok {
			return "", fmt.Errorf("in filter on %s needs a string list", f.Column)
		}
		quoted := make([]string, 0, len(values))
		for _, v := range values {
			quoted = append(quoted, quoteListValue(v))
		}
		return "in.(" + strings.Join(quoted, ",") + ")", nil
	case backend.OpWithinOrNull:
		r, ok := f.Value.(backend.Range)
		if !ok {
			return "", fmt.Errorf("within filter on %s needs a range", f.Column)
		}
		var bounds []string
		if r.From != nil {
			bounds = append(bounds, f.Column+".gte."+quoteListValue(formatValue(r.From)))
		}
		if r.To != nil {
			bounds = append(bounds, f.Column+".lte."+quoteListValue(formatValue(r.To)))
		}
		switch len(bounds) {
		case 0:
			return "", fmt.Errorf("within filter on %s needs a bound", f.Column)
		case 1:
			return "(" + f.Column + ".is.null," + bounds[0] + ")", nil
		}
		return "(" + f.Column + ".is.null,and(" + strings.Join(bounds, ",") + "))", nil
	case backend.OpEq, backend.OpNeq, backend.OpGt, backend.OpGte, backend.OpLt, backend.OpLte, backend.OpILike:
		return string(f.Operator) + "." + formatValue(f.Value), nil
	}
	return "", fmt.Errorf("unsupported filter operator %q", f.Operator)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprintf("%v", v)
}

// quoteListValue quotes values containing PostgREST list delimiters
func quoteListValue(v string) string {
	if strings.ContainsAny(v, ",()\"") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}

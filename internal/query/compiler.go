// Package query compiles URL sort/filter/search expressions into a single
// parameterized SELECT. It is the only place that formats SQL identifiers;
// every user-supplied value is bound as a parameter, never interpolated.
package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Operator is a filter comparison operator
type Operator string

const (
	OpEqual          Operator = "eq"
	OpNotEqual       Operator = "ne"
	OpGreaterThan    Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpLike           Operator = "like"
	OpNotLike        Operator = "notlike"
	OpIn             Operator = "in"
	OpNotIn          Operator = "notin"
	OpIsNull         Operator = "isnull"
	OpIsNotNull      Operator = "isnotnull"
)

var validOperators = map[Operator]bool{
	OpEqual: true, OpNotEqual: true,
	OpGreaterThan: true, OpGreaterOrEqual: true,
	OpLessThan: true, OpLessOrEqual: true,
	OpLike: true, OpNotLike: true,
	OpIn: true, OpNotIn: true,
	OpIsNull: true, OpIsNotNull: true,
}

var sqlOperators = map[Operator]string{
	OpEqual:          "=",
	OpNotEqual:       "!=",
	OpGreaterThan:    ">",
	OpGreaterOrEqual: ">=",
	OpLessThan:       "<",
	OpLessOrEqual:    "<=",
	OpLike:           "LIKE",
	OpNotLike:        "NOT LIKE",
}

// sortFieldRegex bounds sort/filter field tokens before schema lookup
var sortFieldRegex = regexp.MustCompile(`^[A-Za-z0-9_.]{1,100}$`)

// QuoteIdentifier wraps an identifier in double quotes with embedded
// quotes doubled. All identifier formatting in the module goes through here.
func QuoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// Params are the raw query inputs taken from the URL
type Params struct {
	Sort   string
	Filter string
	Search string
	Limit  *int
	Offset *int
}

// Condition is one parsed filter term
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}   // single bound value
	Values   []interface{} // bound values for in/notin
}

// Query is the compiled output: one parameterized SELECT plus its arguments
type Query struct {
	SQL  string
	Args []interface{}
}

// ValidationError accumulates grammar and field errors with the offending
// token echoed back to the caller.
type ValidationError struct {
	Messages []string `json:"messages"`
}

func (e *ValidationError) Error() string {
	b, _ := json.Marshal(e.Messages)
	return "invalid query: " + string(b)
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Messages = append(e.Messages, fmt.Sprintf(format, args...))
}

// Compiler compiles query parameters for one collection. Fields is the set of
// sortable/filterable names (declared fields plus id/created_at/updated_at);
// TextFields lists the declared text-family columns searched by `search`.
type Compiler struct {
	Table      string
	Columns    []string
	Fields     map[string]bool
	TextFields []string
}

// Compile validates the inputs against the declared fields and emits one
// parameterized SELECT: fixed column list, optional AND-joined WHERE,
// ORDER BY, optional LIMIT/OFFSET.
func (c *Compiler) Compile(p Params) (*Query, error) {
	verr := &ValidationError{}

	conditions := c.parseFilter(p.Filter, verr)
	orderBy := c.parseSort(p.Sort, verr)

	if len(verr.Messages) > 0 {
		return nil, verr
	}

	var sb strings.Builder
	var args []interface{}

	sb.WriteString("SELECT ")
	quoted := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		quoted[i] = QuoteIdentifier(col)
	}
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(QuoteIdentifier(c.Table))

	var where []string
	for _, cond := range conditions {
		clause, condArgs := cond.render()
		where = append(where, clause)
		args = append(args, condArgs...)
	}

	if p.Search != "" && len(c.TextFields) > 0 {
		var terms []string
		for _, f := range c.TextFields {
			terms = append(terms, QuoteIdentifier(f)+" LIKE ?")
			args = append(args, "%"+p.Search+"%")
		}
		where = append(where, "("+strings.Join(terms, " OR ")+")")
	}

	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderBy)

	if p.Limit != nil {
		sb.WriteString(" LIMIT ?")
		args = append(args, *p.Limit)
	}
	if p.Offset != nil {
		sb.WriteString(" OFFSET ?")
		args = append(args, *p.Offset)
	}

	return &Query{SQL: sb.String(), Args: args}, nil
}

// CompileCount emits a SELECT COUNT(*) with the same WHERE conditions as
// Compile; sort, limit, and offset are ignored.
func (c *Compiler) CompileCount(p Params) (*Query, error) {
	verr := &ValidationError{}
	conditions := c.parseFilter(p.Filter, verr)
	if len(verr.Messages) > 0 {
		return nil, verr
	}

	var sb strings.Builder
	var args []interface{}
	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(QuoteIdentifier(c.Table))

	var where []string
	for _, cond := range conditions {
		clause, condArgs := cond.render()
		where = append(where, clause)
		args = append(args, condArgs...)
	}
	if p.Search != "" && len(c.TextFields) > 0 {
		var terms []string
		for _, f := range c.TextFields {
			terms = append(terms, QuoteIdentifier(f)+" LIKE ?")
			args = append(args, "%"+p.Search+"%")
		}
		where = append(where, "("+strings.Join(terms, " OR ")+")")
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	return &Query{SQL: sb.String(), Args: args}, nil
}

// parseSort parses `field[,field]*` with `-` prefix for descending.
// Returns the rendered ORDER BY clause body.
func (c *Compiler) parseSort(sort string, verr *ValidationError) string {
	if sort == "" {
		return QuoteIdentifier("created_at") + " DESC"
	}

	var clauses []string
	for _, token := range strings.Split(sort, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		desc := false
		if strings.HasPrefix(token, "-") {
			desc = true
			token = token[1:]
		}
		if !sortFieldRegex.MatchString(token) {
			verr.add("invalid sort field %q", token)
			continue
		}
		if !c.Fields[token] {
			verr.add("unknown sort field %q", token)
			continue
		}
		clause := QuoteIdentifier(token)
		if desc {
			clause += " DESC"
		} else {
			clause += " ASC"
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 0 {
		return QuoteIdentifier("created_at") + " DESC"
	}
	return strings.Join(clauses, ", ")
}

// parseFilter parses `field:op:value[,field:op:value]*`. For in/notin the
// value is a `;`-separated list; isnull/isnotnull take an empty value.
func (c *Compiler) parseFilter(filter string, verr *ValidationError) []Condition {
	if filter == "" {
		return nil
	}

	var conditions []Condition
	for _, token := range strings.Split(filter, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		parts := strings.SplitN(token, ":", 3)
		if len(parts) < 2 {
			verr.add("invalid filter term %q", token)
			continue
		}
		field := parts[0]
		op := Operator(parts[1])
		value := ""
		if len(parts) == 3 {
			value = parts[2]
		}

		if !sortFieldRegex.MatchString(field) {
			verr.add("invalid filter field %q", field)
			continue
		}
		if !c.Fields[field] {
			verr.add("unknown filter field %q", field)
			continue
		}
		if !validOperators[op] {
			verr.add("unknown filter operator %q", string(op))
			continue
		}

		cond := Condition{Field: field, Operator: op}
		switch op {
		case OpIsNull, OpIsNotNull:
			// no bound value
		case OpIn, OpNotIn:
			if value == "" {
				verr.add("filter %q requires a value list", token)
				continue
			}
			for _, v := range strings.Split(value, ";") {
				cond.Values = append(cond.Values, parseValue(v))
			}
		case OpLike, OpNotLike:
			if !strings.Contains(value, "%") {
				value = "%" + value + "%"
			}
			cond.Value = value
		default:
			cond.Value = parseValue(value)
		}
		conditions = append(conditions, cond)
	}
	return conditions
}

// render produces the SQL fragment and bound arguments for one condition
func (cond Condition) render() (string, []interface{}) {
	field := QuoteIdentifier(cond.Field)
	switch cond.Operator {
	case OpIsNull:
		return field + " IS NULL", nil
	case OpIsNotNull:
		return field + " IS NOT NULL", nil
	case OpIn, OpNotIn:
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cond.Values)), ", ")
		kw := "IN"
		if cond.Operator == OpNotIn {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", field, kw, placeholders), cond.Values
	default:
		return fmt.Sprintf("%s %s ?", field, sqlOperators[cond.Operator]), []interface{}{cond.Value}
	}
}

// parseValue coerces a filter value: boolean first, then number, then string
func parseValue(raw string) interface{} {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

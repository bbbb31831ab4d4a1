package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var paramPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// SubstituteParams textually replaces :name placeholders in a statement.
// String values are single-quoted, numeric values are inserted literally.
// Placeholders without a matching parameter are left untouched. No escaping
// beyond quoting is performed; raw query callers own input trust.
func SubstituteParams(statement string, params map[string]interface{}) string {
	if len(params) == 0 {
		return statement
	}
	return paramPattern.ReplaceAllStringFunc(statement, func(token string) string {
		name := token[1:]
		value, ok := params[name]
		if !ok {
			return token
		}
		return LiteralValue(value)
	})
}

// LiteralValue renders a parameter value as a SQL literal.
func LiteralValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", v), "'", "''") + "'"
	}
}

package sqlrelay

import (
	"strconv"
	"strings"

	"github.com/lexiumindustries/sqlrelay/driver"
)

// BoundStatement is a query template with all parameters resolved to
// wire-safe typed values, ready for dispatch. Immutable once constructed.
type BoundStatement struct {
	query   string
	args    []any
	retDest *int64
}

// SQL returns the statement text with `?` placeholders.
func (s BoundStatement) SQL() string { return s.query }

// Args returns a copy of the resolved driver arguments.
func (s BoundStatement) Args() []any {
	out := make([]any, len(s.args))
	copy(out, s.args)
	return out
}

// Bind resolves a parameterized query template against positional params.
// The template uses `?` placeholders; placeholders inside string literals,
// quoted identifiers and comments are ignored. The placeholder count must
// match the number of params exactly.
//
// Bracket identifiers ([name], SQL Server) are quoting only in the @p
// dialect; at bind time a `?` between brackets counts as a placeholder, so
// array subscripts like arr[?] bind naturally on dollar-style drivers. A
// literal `?` inside a bracket identifier is not supported.
func Bind(template string, params ...Param) (BoundStatement, error) {
	n := countPlaceholders(template)
	if n != len(params) {
		return BoundStatement{}, appErrorf("statement expects %d parameters, got %d", n, len(params))
	}
	stmt := BoundStatement{query: template, args: make([]any, len(params))}
	for i, p := range params {
		v, err := p.resolve()
		if err != nil {
			return BoundStatement{}, err
		}
		stmt.args[i] = v
		if p.ret {
			stmt.retDest = p.Value.(*int64)
		}
	}
	return stmt, nil
}

// MustBind is like Bind but panics on error. Intended for statically known
// statements.
func MustBind(template string, params ...Param) BoundStatement {
	stmt, err := Bind(template, params...)
	if err != nil {
		panic(err)
	}
	return stmt
}

func countPlaceholders(query string) int {
	n := 0
	scanQuery(query, false, func(int) { n++ })
	return n
}

// rewritePlaceholders rewrites `?` placeholders into the driver's
// positional style. Question-style templates pass through untouched.
func rewritePlaceholders(query string, ph driver.Placeholder) string {
	if ph == driver.PlaceholderQuestion {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	last, n := 0, 0
	scanQuery(query, ph == driver.PlaceholderAtP, func(pos int) {
		n++
		b.WriteString(query[last:pos])
		switch ph {
		case driver.PlaceholderDollar:
			b.WriteByte('$')
		case driver.PlaceholderAtP:
			b.WriteString("@p")
		}
		b.WriteString(strconv.Itoa(n))
		last = pos + 1
	})
	if n == 0 {
		return query
	}
	b.WriteString(query[last:])
	return b.String()
}

// scanQuery walks the SQL text and invokes fn with the byte offset of every
// `?` placeholder outside string literals ('…', "…"), quoted identifiers
// (`…`) and comments (-- … and /* … */). Brackets are treated as identifier
// quoting only when bracketIdent is set; otherwise they are subscript
// syntax and their contents are scanned.
func scanQuery(query string, bracketIdent bool, fn func(pos int)) {
	for i := 0; i < len(query); i++ {
		switch query[i] {
		case '?':
			fn(i)
		case '\'', '"', '`':
			i = skipQuoted(query, i, query[i])
		case '[':
			if !bracketIdent {
				continue
			}
			for i++; i < len(query) && query[i] != ']'; i++ {
			}
		case '-':
			if i+1 < len(query) && query[i+1] == '-' {
				for i += 2; i < len(query) && query[i] != '\n'; i++ {
				}
			}
		case '/':
			if i+1 < len(query) && query[i+1] == '*' {
				end := strings.Index(query[i+2:], "*/")
				if end < 0 {
					return
				}
				i += 2 + end + 1
			}
		}
	}
}

// skipQuoted returns the index of the closing quote, honouring backslash
// escapes and doubled quotes.
func skipQuoted(query string, start int, q byte) int {
	for i := start + 1; i < len(query); i++ {
		switch query[i] {
		case '\\':
			i++
		case q:
			if i+1 < len(query) && query[i+1] == q {
				i++
				continue
			}
			return i
		}
	}
	return len(query)
}

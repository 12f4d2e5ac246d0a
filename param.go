package sqlrelay

import (
	"database/sql"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// TypeCode identifies the wire type of a bound parameter or an expected
// result column.
type TypeCode int

const (
	TypeAuto TypeCode = iota // infer from the Go value
	TypeNull
	TypeBool
	TypeInt
	TypeFloat
	TypeDecimal
	TypeString
	TypeBytes
	TypeTime
)

func (t TypeCode) String() string {
	switch t {
	case TypeAuto:
		return "auto"
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeTime:
		return "time"
	}
	return "unknown"
}

// Param is one positional statement parameter: a value plus its explicit or
// inferred wire type. Values always travel as bound parameters; they are
// never spliced into the SQL text.
type Param struct {
	Value any
	Type  TypeCode

	// Out marks an output parameter of a stored procedure. Value must be
	// a pointer the driver writes through.
	Out bool

	ret bool
}

// Value wraps v as a parameter whose wire type is inferred.
func Value(v any) Param { return Param{Value: v} }

// Typed wraps v as a parameter with an explicit wire type.
func Typed(v any, t TypeCode) Param { return Param{Value: v, Type: t} }

// Null is the SQL NULL parameter.
func Null() Param { return Param{Type: TypeNull} }

// OutParam binds a stored-procedure output parameter. dest must be a
// pointer; the driver writes the value through it when the call completes.
func OutParam(dest any) Param { return Param{Value: dest, Out: true} }

// Return binds the return code of a stored procedure. The value is also
// exposed through ProcedureCallResult.Status once the call result is closed.
func Return(dest *int64) Param { return Param{Value: dest, Type: TypeInt, Out: true, ret: true} }

// resolve converts the parameter into a driver-ready argument.
func (p Param) resolve() (any, error) {
	if p.Out {
		if p.Value == nil {
			return nil, appErrorf("output parameter requires a non-nil pointer destination")
		}
		return sql.Out{Dest: p.Value}, nil
	}
	switch p.Type {
	case TypeAuto:
		return inferValue(p.Value)
	case TypeNull:
		return nil, nil
	case TypeBool:
		if v, ok := p.Value.(bool); ok {
			return v, nil
		}
	case TypeInt:
		return toInt64(p.Value)
	case TypeFloat:
		switch v := p.Value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		}
	case TypeDecimal:
		return toDecimalArg(p.Value)
	case TypeString:
		if v, ok := p.Value.(string); ok {
			return v, nil
		}
	case TypeBytes:
		if v, ok := p.Value.([]byte); ok {
			return v, nil
		}
	case TypeTime:
		if v, ok := p.Value.(time.Time); ok {
			return v, nil
		}
	}
	return nil, appErrorf("value of type %T cannot be bound as %s", p.Value, p.Type)
}

// inferValue maps a Go value to a wire-safe driver argument.
func inferValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, string, []byte, time.Time, int64, float64:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint:
		return toInt64(uint64(t))
	case uint64:
		return toInt64(t)
	case float32:
		return float64(t), nil
	case decimal.Decimal:
		// Decimals travel as text to avoid float rounding on the wire.
		return t.String(), nil
	}
	return nil, appErrorf("unsupported parameter type %T", v)
}

func toInt64(v any) (any, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint:
		return toInt64(uint64(t))
	case uint64:
		if t > math.MaxInt64 {
			return nil, appErrorf("unsigned value %d overflows the integer wire type", t)
		}
		return int64(t), nil
	}
	return nil, appErrorf("value of type %T cannot be bound as int", v)
}

func toDecimalArg(v any) (any, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t.String(), nil
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return nil, appErrorf("invalid decimal literal %q", t)
		}
		return d.String(), nil
	case float64:
		return decimal.NewFromFloat(t).String(), nil
	case float32:
		return decimal.NewFromFloat32(t).String(), nil
	case int64:
		return decimal.NewFromInt(t).String(), nil
	case int:
		return decimal.NewFromInt(int64(t)).String(), nil
	}
	return nil, appErrorf("value of type %T cannot be bound as decimal", v)
}

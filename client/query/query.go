package query

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// Group is one named filter list, such as "studies" or "buildings".
type Group struct {
	Name   string
	Values []any
}

// Filter is an ordered set of groups. The zero value is an empty filter.
type Filter []Group

// New returns an empty Filter ready for [Filter.Add].
func New() Filter {
	return Filter{}
}

// Add appends a group with the given values and returns the extended
// filter. Values are scalars or [Object]s.
func (f Filter) Add(name string, values ...any) Filter {
	return append(f, Group{Name: name, Values: values})
}

// Field is a single key/value entry of an [Object].
type Field struct {
	Key   string
	Value any
}

// Object is a flat mapping whose fields keep their insertion order.
type Object []Field

// Fields builds an Object from alternating keys and values. A trailing
// key without a value is paired with an empty string.
func Fields(kv ...any) Object {
	obj := make(Object, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		f := Field{Key: Format(kv[i])}
		if i+1 < len(kv) {
			f.Value = kv[i+1]
		} else {
			f.Value = ""
		}
		obj = append(obj, f)
	}

	return obj
}

// Param is one flattened key/value pair.
type Param struct {
	Key   string
	Value any
}

// Params is the ordered output of [Flatten].
type Params []Param

// Flatten turns f into bracket-indexed parameters:
//
//	g[i]      -> v      for scalar values
//	g[i][k]   -> val    for each field of an Object value
func Flatten(f Filter) Params {
	var params Params
	for _, g := range f {
		for i, v := range g.Values {
			prefix := g.Name + "[" + strconv.Itoa(i) + "]"

			obj, ok := v.(Object)
			if !ok {
				params = append(params, Param{Key: prefix, Value: v})
				continue
			}

			for _, field := range obj {
				params = append(params, Param{Key: prefix + "[" + field.Key + "]", Value: field.Value})
			}
		}
	}

	return params
}

// Encode renders the parameters in order using form encoding, so spaces
// become "+" and brackets become %5B and %5D.
func (p Params) Encode() string {
	var b strings.Builder
	for i, param := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(param.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(Format(param.Value)))
	}

	return b.String()
}

// Values converts the parameters to url.Values. Ordering is lost; use
// [Params.Encode] when the exact URL matters.
func (p Params) Values() url.Values {
	vals := make(url.Values, len(p))
	for _, param := range p {
		vals.Add(param.Key, Format(param.Value))
	}

	return vals
}

// Format renders a scalar the way the server expects to read it back.
// Integers keep their decimal form and floats use the shortest exact
// representation, so 22 and 22.0 both become "22". Values [Scalar] does
// not know fall back to fmt.Sprint.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	}

	if s, ok := Scalar(v); ok {
		return s
	}

	return fmt.Sprint(v)
}

// Scalar renders strings, numbers, json.Number and fmt.Stringer values,
// including named types such as `type StudyID int`. ok is false for any
// other value.
func Scalar(v any) (s string, ok bool) {
	switch val := v.(type) {
	case json.Number:
		return val.String(), true
	case fmt.Stringer:
		return val.String(), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	default:
		return "", false
	}
}

package core

import (
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
)

// Param is one named request parameter.
type Param struct {
	Key   string
	Value any
}

// Params is an ordered collection of request parameters. A nil value means
// the parameter is omitted.
type Params []Param

// NewParams builds Params from alternating key/value arguments.
// It panics if a key is not a string or the argument count is odd.
func NewParams(kv ...any) Params {
	if len(kv)%2 != 0 {
		panic("core.NewParams: odd argument count")
	}
	p := make(Params, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("core.NewParams: key at %d is %T, not string", i, kv[i]))
		}
		p = p.Set(key, kv[i+1])
	}
	return p
}

// Set replaces the value of an existing key in place or appends a new one.
func (p Params) Set(key string, value any) Params {
	for i := range p {
		if p[i].Key == key {
			p[i].Value = value
			return p
		}
	}
	return append(p, Param{Key: key, Value: value})
}

// Get returns the value for key.
func (p Params) Get(key string) (any, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Delete removes key, preserving the order of the rest.
func (p Params) Delete(key string) Params {
	return slices.DeleteFunc(p, func(kv Param) bool { return kv.Key == key })
}

// Clone returns a shallow copy that can be modified without touching p.
func (p Params) Clone() Params {
	return slices.Clone(p)
}

// Sorted returns a copy ordered by key.
func (p Params) Sorted() Params {
	out := p.Clone()
	slices.SortStableFunc(out, func(a, b Param) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// Encode renders the parameters as a URL query string in their given order.
// Entries whose value is nil or formats to blank are skipped. Values are
// query-escaped; keys are written verbatim, so a key containing '&', '=' or
// '+' does not survive a parse of the result.
func (p Params) Encode() string {
	var sb strings.Builder
	for _, kv := range p {
		if IsNil(kv.Value) {
			continue
		}
		s := FormatValue(kv.Value)
		if strings.TrimSpace(s) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(kv.Key)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(s))
	}
	return sb.String()
}

// MarshalJSON encodes the parameters as a JSON object keeping their order.
// Nil values are dropped.
func (p Params) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	first := true
	for _, kv := range p {
		if IsNil(kv.Value) {
			continue
		}
		key, err := sonic.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		val, err := sonic.Marshal(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal param %s: %w", kv.Key, err)
		}
		if !first {
			buf = append(buf, ',')
		}
		first = false
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

// IsNil reports whether v is nil or a nil pointer, map, slice or interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// IsList reports whether v is a slice or array (other than raw bytes).
func IsList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// FormatValue converts a parameter value to the string sent on the wire.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case apd.Decimal:
		return val.Text('f')
	case *apd.Decimal:
		if val == nil {
			return ""
		}
		return val.Text('f')
	case time.Time:
		return strconv.FormatInt(val.UnixMilli(), 10)
	case fmt.Stringer:
		if IsNil(val) {
			return ""
		}
		return val.String()
	}
	if IsList(v) {
		data, err := sonic.Marshal(v)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%v", v)
}

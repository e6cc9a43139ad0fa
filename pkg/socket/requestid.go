package socket

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"nakula/pkg/core"
)

type idKind uint8

const (
	idNone idKind = iota
	idString
	idInt
)

// RequestID is the correlation id of an outbound envelope: absent, a string or
// an integer. The zero value is NoID.
type RequestID struct {
	kind idKind
	str  string
	num  int64
}

// NoID asks the client to generate an id.
var NoID = RequestID{}

// StringID returns a string id. A blank string behaves like NoID.
func StringID(s string) RequestID {
	return RequestID{kind: idString, str: s}
}

// IntID returns an integer id.
func IntID(n int64) RequestID {
	return RequestID{kind: idInt, num: n}
}

// RequestIDFrom converts an untyped id. nil, strings and integers are
// accepted; anything else is a ValidationError.
func RequestIDFrom(v any) (RequestID, error) {
	switch id := v.(type) {
	case nil:
		return NoID, nil
	case RequestID:
		return id, nil
	case string:
		return StringID(id), nil
	case int:
		return IntID(int64(id)), nil
	case int8:
		return IntID(int64(id)), nil
	case int16:
		return IntID(int64(id)), nil
	case int32:
		return IntID(int64(id)), nil
	case int64:
		return IntID(id), nil
	case uint:
		return uintID(uint64(id))
	case uint8:
		return IntID(int64(id)), nil
	case uint16:
		return IntID(int64(id)), nil
	case uint32:
		return IntID(int64(id)), nil
	case uint64:
		return uintID(id)
	default:
		return NoID, core.NewValidationError("id", fmt.Sprintf("unsupported request id type %T", v))
	}
}

func uintID(n uint64) (RequestID, error) {
	if n > math.MaxInt64 {
		return NoID, core.NewValidationError("id", "request id out of range")
	}
	return IntID(int64(n)), nil
}

// IsNone reports whether an id will be generated for this value.
func (id RequestID) IsNone() bool {
	switch id.kind {
	case idNone:
		return true
	case idString:
		return strings.TrimSpace(id.str) == ""
	}
	return false
}

// IsInt reports whether the id is an integer.
func (id RequestID) IsInt() bool {
	return id.kind == idInt
}

// Int returns the integer value of an integer id.
func (id RequestID) Int() int64 {
	return id.num
}

// String returns the id as text; empty for NoID.
func (id RequestID) String() string {
	switch id.kind {
	case idString:
		return id.str
	case idInt:
		return strconv.FormatInt(id.num, 10)
	}
	return ""
}

// resolve replaces an absent or blank id with a fresh UUID.
func (id RequestID) resolve() RequestID {
	if id.IsNone() {
		return StringID(uuid.NewString())
	}
	return id
}

// MarshalJSON encodes a string id as a JSON string and an integer id as a
// JSON number.
func (id RequestID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idString:
		return sonic.Marshal(id.str)
	case idInt:
		return strconv.AppendInt(nil, id.num, 10), nil
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a JSON string, an integer or null.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	switch {
	case text == "null":
		*id = NoID
	case strings.HasPrefix(text, `"`):
		var s string
		if err := sonic.UnmarshalString(text, &s); err != nil {
			return fmt.Errorf("request id: %w", err)
		}
		*id = StringID(s)
	default:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return fmt.Errorf("request id %s: %w", text, err)
		}
		*id = IntID(n)
	}
	return nil
}

// matchKey identifies the id by kind and decoded value, used to match replies.
func (id RequestID) matchKey() string {
	switch id.kind {
	case idString:
		return "s:" + id.str
	case idInt:
		return "i:" + strconv.FormatInt(id.num, 10)
	}
	return ""
}

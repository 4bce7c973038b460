package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Parameters holds the caller-supplied arguments of an invocation.
// Stored as JSONB.
type Parameters map[string]interface{}

// String returns the parameter rendered as a trimmed string and whether it
// was present with a non-empty value.
func (p Parameters) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		s = val.String()
	case bool:
		s = strconv.FormatBool(val)
	default:
		s = fmt.Sprint(val)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Clone returns a shallow copy of the map
func (p Parameters) Clone() Parameters {
	if p == nil {
		return nil
	}
	c := make(Parameters, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Value implements driver.Valuer
func (p Parameters) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner
func (p *Parameters) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = Parameters{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported parameters type %T", src)
	}
	out := Parameters{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	*p = out
	return nil
}

package nuki

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// flexString accepts a JSON string, number, boolean or null.  Nuki sends
// ids as numbers in some payloads and strings in others.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*f = flexString(b)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		if i, err := n.Int64(); err == nil {
			*f = flexString(strconv.FormatInt(i, 10))
			return nil
		}
		*f = flexString(n.String())
	}
	return nil
}

// flexBool accepts any JSON value and reads it as a truth value.  Strings
// that strconv understands ("true", "0", "F") are parsed; any other
// non-empty string is true.  Numbers are true when non-zero.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")), bytes.Equal(b, []byte("false")):
		*f = false
	case bytes.Equal(b, []byte("true")):
		*f = true
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if v, err := strconv.ParseBool(s); err == nil {
			*f = flexBool(v)
			return nil
		}
		*f = s != ""
	case b[0] == '{', b[0] == '[':
		*f = true
	default:
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return err
		}
		*f = n != 0
	}
	return nil
}

package cnwdevice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The registry is backed by PHP/MySQL and returns loosely typed JSON:
// booleans come as true, 1 or "1", ids and counts as numbers or strings.
// These types accept every form and marshal back to the canonical one.

// FlexBool is a bool that decodes from JSON booleans, numbers and strings.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	s := strings.ToLower(strings.Trim(string(data), `"`))
	switch s {
	case "true", "1", "yes", "on":
		*b = true
	case "false", "0", "no", "off", "":
		*b = false
	default:
		return fmt.Errorf("cnwdevice: cannot decode %s as bool", data)
	}
	return nil
}

func (b FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

// FlexInt is an int that decodes from JSON numbers and numeric strings.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("cnwdevice: cannot decode %s as int", data)
	}
	*n = FlexInt(f)
	return nil
}

func (n FlexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(n))
}

// FlexString is a string that also decodes from JSON numbers, for ids.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("cnwdevice: cannot decode %s as string", data)
	}
	*s = FlexString(num.String())
	return nil
}

func (s FlexString) String() string {
	return string(s)
}

// timestamp layouts seen from the registry, MySQL DATETIME first.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
}

// ParseTimestamp parses a registry timestamp. MySQL DATETIME values carry
// no zone and are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

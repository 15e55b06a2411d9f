package predicates

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/francisco-leal/ModBot/rules"
)

// Stored arguments come from JSON forms: numbers may arrive as float64,
// json.Number or numeric strings, booleans as "true"/"on".

func missingArg(rule rules.RuleName, key string) error {
	return &rules.ConfigurationError{Reason: fmt.Sprintf("rule %s: missing argument %q", rule, key)}
}

func invalidArg(rule rules.RuleName, key string, v any) error {
	return &rules.ConfigurationError{Reason: fmt.Sprintf("rule %s: invalid argument %q: %v", rule, key, v)}
}

func argString(c *rules.Condition, key string, required bool) (string, error) {
	v, ok := c.Args[key]
	if !ok || v == nil {
		if required {
			return "", missingArg(c.Name, key)
		}
		return "", nil
	}
	switch s := v.(type) {
	case string:
		if required && strings.TrimSpace(s) == "" {
			return "", missingArg(c.Name, key)
		}
		return s, nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case json.Number:
		return s.String(), nil
	default:
		return "", invalidArg(c.Name, key, v)
	}
}

func argBool(c *rules.Condition, key string) (bool, error) {
	v, ok := c.Args[key]
	if !ok || v == nil {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(b) {
		case "", "false", "off", "0":
			return false, nil
		case "true", "on", "1":
			return true, nil
		}
	}
	return false, invalidArg(c.Name, key, v)
}

// argInt reads an integer argument. ok is false when the argument is absent
// and not required.
func argInt(c *rules.Condition, key string, required bool) (n int64, ok bool, err error) {
	v, present := c.Args[key]
	if !present || v == nil || v == "" {
		if required {
			return 0, false, missingArg(c.Name, key)
		}
		return 0, false, nil
	}
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, false, invalidArg(c.Name, key, v)
		}
		return int64(x), true, nil
	case int:
		return int64(x), true, nil
	case int64:
		return x, true, nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, false, invalidArg(c.Name, key, v)
		}
		return n, true, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false, invalidArg(c.Name, key, v)
		}
		return n, true, nil
	default:
		return 0, false, invalidArg(c.Name, key, v)
	}
}

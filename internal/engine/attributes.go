package engine

import (
	"encoding/json"
	"fmt"
	"math"
)

// attributes is a read-only view over a request's context bag. Each accessor
// reports whether the key was present and returns an error when it was
// present with the wrong type. A JSON null counts as absent.
type attributes map[string]interface{}

type attrKind int

const (
	kindString attrKind = iota
	kindBool
	kindNumber
)

// attrSpec names a recognised attribute and the type it must have
type attrSpec struct {
	key  string
	kind attrKind
}

// validate reports a type error for a present attribute; absent is fine
func (a attributes) validate(spec attrSpec) error {
	var err error
	switch spec.kind {
	case kindString:
		_, _, err = a.str(spec.key)
	case kindBool:
		_, _, err = a.flag(spec.key)
	case kindNumber:
		_, _, err = a.number(spec.key)
	}
	return err
}

func (a attributes) lookup(key string) (interface{}, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (a attributes) str(key string) (string, bool, error) {
	v, ok := a.lookup(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, fmt.Errorf("expected string, got %T", v)
	}
	return s, true, nil
}

func (a attributes) flag(key string) (bool, bool, error) {
	v, ok := a.lookup(key)
	if !ok {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, true, fmt.Errorf("expected bool, got %T", v)
	}
	return b, true, nil
}

func (a attributes) number(key string) (float64, bool, error) {
	v, ok := a.lookup(key)
	if !ok {
		return 0, false, nil
	}

	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, true, fmt.Errorf("invalid number %q", n.String())
		}
		f = parsed
	default:
		return 0, true, fmt.Errorf("expected number, got %T", v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, true, fmt.Errorf("expected finite number, got %v", f)
	}
	return f, true, nil
}

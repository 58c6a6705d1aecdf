package registry

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Args are the configuration values a factory builds its unit from.
type Args map[string]cty.Value

// Value returns a raw argument.
func (a Args) Value(name string) (cty.Value, bool) {
	v, ok := a[name]
	if !ok || v.IsNull() {
		return cty.NilVal, false
	}
	return v, true
}

// As converts an argument to ty, returning def when it is absent.
func (a Args) As(name string, ty cty.Type, def cty.Value) (cty.Value, error) {
	v, ok := a.Value(name)
	if !ok {
		return def, nil
	}
	converted, err := convert.Convert(v, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("argument '%s': %w", name, err)
	}
	return converted, nil
}

// Decode converts an argument into the Go value target points to, leaving
// it unchanged when the argument is absent.
func (a Args) Decode(name string, target any) error {
	v, ok := a.Value(name)
	if !ok {
		return nil
	}
	ty, err := gocty.ImpliedType(target)
	if err != nil {
		return fmt.Errorf("argument '%s': %w", name, err)
	}
	v, err = convert.Convert(v, ty)
	if err != nil {
		return fmt.Errorf("argument '%s': %w", name, err)
	}
	if err := gocty.FromCtyValue(v, target); err != nil {
		return fmt.Errorf("argument '%s': %w", name, err)
	}
	return nil
}

// String returns a string argument or def.
func (a Args) String(name, def string) (string, error) {
	s := def
	err := a.Decode(name, &s)
	return s, err
}

// Int returns an integer argument or def.
func (a Args) Int(name string, def int) (int, error) {
	n := def
	err := a.Decode(name, &n)
	return n, err
}

// Float returns a number argument or def.
func (a Args) Float(name string, def float64) (float64, error) {
	f := def
	err := a.Decode(name, &f)
	return f, err
}

// Names returns the argument names, sorted.
func (a Args) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

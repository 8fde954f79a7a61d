package control

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Params is one stage's parameter block: attribute name to HCL-typed value.
type Params map[string]cty.Value

// Merge auto-fills a stage's parameters from its engine defaults. User
// values always win; the result is a new map and neither input is modified.
func Merge(user, defaults Params) Params {
	out := make(Params, len(user)+len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range user {
		out[k] = v
	}
	return out
}

// Clone returns a copy of the parameter map. cty values are immutable, so a
// shallow value copy is sufficient.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Set returns a copy of the map with one value replaced. Used by the
// parameter-search strategy, which must never mutate ancestor state.
func (p Params) Set(name string, v cty.Value) Params {
	out := p.Clone()
	if out == nil {
		out = make(Params, 1)
	}
	out[name] = v
	return out
}

// String reads a string-convertible parameter.
func (p Params) String(name string) (string, bool) {
	v, ok := p[name]
	if !ok || v.IsNull() {
		return "", false
	}
	conv, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", false
	}
	return conv.AsString(), true
}

// Float reads a number-convertible parameter.
func (p Params) Float(name string) (float64, bool) {
	v, ok := p[name]
	if !ok || v.IsNull() {
		return 0, false
	}
	conv, err := convert.Convert(v, cty.Number)
	if err != nil {
		return 0, false
	}
	f, _ := conv.AsBigFloat().Float64()
	return f, true
}

// Int reads a number parameter, truncating toward zero.
func (p Params) Int(name string) (int, bool) {
	f, ok := p.Float(name)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool reads a bool-convertible parameter.
func (p Params) Bool(name string) (bool, bool) {
	v, ok := p[name]
	if !ok || v.IsNull() {
		return false, false
	}
	conv, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, false
	}
	return conv.True(), true
}

// ToNative converts the parameter map into plain Go values for durable
// serialization (checkpoint artifacts, cluster job payloads).
func (p Params) ToNative() map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = ctyToNative(v)
	}
	return out
}

// ParamsFromNative rebuilds a parameter map from its serialized form.
func ParamsFromNative(raw map[string]any) (Params, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(Params, len(raw))
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v, err := nativeToCty(raw[k])
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func ctyToNative(v cty.Value) any {
	if v.IsNull() || !v.IsKnown() {
		return nil
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString()
	case t == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f
	case t == cty.Bool:
		return v.True()
	case t.IsListType() || t.IsTupleType() || t.IsSetType():
		var out []any
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			out = append(out, ctyToNative(ev))
		}
		return out
	case t.IsMapType() || t.IsObjectType():
		out := make(map[string]any)
		for name, ev := range v.AsValueMap() {
			out[name] = ctyToNative(ev)
		}
		return out
	default:
		return nil
	}
}

func nativeToCty(v any) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	// YAML decodes integers as int; normalize so the implied type is Number.
	if i, ok := v.(int); ok {
		v = float64(i)
	}
	// Decoded JSON/YAML collections arrive as []any / map[string]any, which
	// gocty cannot type on its own; rebuild them element by element.
	switch tv := v.(type) {
	case []any:
		if len(tv) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, 0, len(tv))
		for i, ev := range tv {
			cv, err := nativeToCty(ev)
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			elems = append(elems, cv)
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(tv) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(tv))
		for name, ev := range tv {
			cv, err := nativeToCty(ev)
			if err != nil {
				return cty.NilVal, fmt.Errorf("attribute %q: %w", name, err)
			}
			attrs[name] = cv
		}
		return cty.ObjectVal(attrs), nil
	}
	t, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("cannot imply cty type from %T: %w", v, err)
	}
	cv, err := gocty.ToCtyValue(v, t)
	if err != nil {
		return cty.NilVal, fmt.Errorf("cannot convert %T to cty value: %w", v, err)
	}
	return cv, nil
}

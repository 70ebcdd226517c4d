// Package hydrate merges loosely-typed stored documents onto typed defaults.
//
// The target value fixes the shape of the result: struct fields are taken from the
// target type, never from the source, so a hydrated value always carries every field
// the application expects. Source values are only accepted where their JSON type
// matches the target field's Go type.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

var rawMessageType = reflect.TypeOf(json.RawMessage(nil))

// Decode parses JSON into generic values, keeping numbers as json.Number.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to decode document: trailing data")
	}
	return v, nil
}

// Value returns a deep copy of target with every well-typed part of source merged
// onto it. Neither argument is modified.
func Value[T any](target T, source any) T {
	tv := reflect.ValueOf(&target).Elem()
	out, _ := merge(tv, source)
	return out.Interface().(T)
}

// merge builds a new value of tgt's type. The boolean reports whether source was
// usable for that type; when it is false the returned value is a copy of tgt.
func merge(tgt reflect.Value, src any) (reflect.Value, bool) {
	if src == nil {
		return deepCopy(tgt), false
	}
	t := tgt.Type()
	if t == rawMessageType {
		raw, err := json.Marshal(src)
		if err != nil {
			return deepCopy(tgt), false
		}
		return reflect.ValueOf(json.RawMessage(raw)), true
	}

	switch t.Kind() {
	case reflect.Bool:
		b, ok := src.(bool)
		if !ok {
			return deepCopy(tgt), false
		}
		out := reflect.New(t).Elem()
		out.SetBool(b)
		return out, true
	case reflect.String:
		s, ok := src.(string)
		if !ok {
			return deepCopy(tgt), false
		}
		out := reflect.New(t).Elem()
		out.SetString(s)
		return out, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := toInt(src)
		out := reflect.New(t).Elem()
		if !ok || out.OverflowInt(n) {
			return deepCopy(tgt), false
		}
		out.SetInt(n)
		return out, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := toInt(src)
		out := reflect.New(t).Elem()
		if !ok || n < 0 || out.OverflowUint(uint64(n)) {
			return deepCopy(tgt), false
		}
		out.SetUint(uint64(n))
		return out, true
	case reflect.Float32, reflect.Float64:
		f, ok := toFloat(src)
		out := reflect.New(t).Elem()
		if !ok || out.OverflowFloat(f) {
			return deepCopy(tgt), false
		}
		out.SetFloat(f)
		return out, true
	case reflect.Slice:
		return mergeSlice(tgt, src)
	case reflect.Map:
		return mergeMap(tgt, src)
	case reflect.Struct:
		return mergeStruct(tgt, src)
	case reflect.Interface:
		out := reflect.New(t).Elem()
		sv := reflect.ValueOf(src)
		if !sv.Type().AssignableTo(t) {
			return deepCopy(tgt), false
		}
		out.Set(deepCopy(sv))
		return out, true
	default:
		return deepCopy(tgt), false
	}
}

// Slices are atomic: either every element fits and the source replaces the target,
// or the target is kept.
func mergeSlice(tgt reflect.Value, src any) (reflect.Value, bool) {
	items, ok := src.([]any)
	if !ok {
		return deepCopy(tgt), false
	}
	t := tgt.Type()
	out := reflect.MakeSlice(t, len(items), len(items))
	zero := reflect.New(t.Elem()).Elem()
	for i, item := range items {
		v, ok := merge(zero, item)
		if !ok {
			return deepCopy(tgt), false
		}
		out.Index(i).Set(v)
	}
	return out, true
}

// Keyed maps are merged by key union; malformed source entries are dropped.
func mergeMap(tgt reflect.Value, src any) (reflect.Value, bool) {
	obj, ok := src.(map[string]any)
	t := tgt.Type()
	if !ok || t.Key().Kind() != reflect.String {
		return deepCopy(tgt), false
	}
	out := deepCopy(tgt)
	if out.IsNil() {
		out = reflect.MakeMapWithSize(t, len(obj))
	}
	zero := reflect.New(t.Elem()).Elem()
	for k, item := range obj {
		key := reflect.ValueOf(k).Convert(t.Key())
		base := tgt.MapIndex(key)
		if !base.IsValid() {
			base = zero
		}
		v, ok := merge(base, item)
		if !ok {
			continue
		}
		out.SetMapIndex(key, v)
	}
	return out, true
}

func mergeStruct(tgt reflect.Value, src any) (reflect.Value, bool) {
	obj, ok := src.(map[string]any)
	if !ok {
		return deepCopy(tgt), false
	}
	t := tgt.Type()
	out := reflect.New(t).Elem()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, skip := jsonName(field)
		if skip {
			out.Field(i).Set(deepCopy(tgt.Field(i)))
			continue
		}
		v, _ := merge(tgt.Field(i), obj[name])
		out.Field(i).Set(v)
	}
	return out, true
}

func jsonName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	return name, false
}

func toFloat(src any) (float64, bool) {
	var f float64
	switch v := src.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(src any) (int64, bool) {
	switch v := src.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	f, ok := toFloat(src)
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if !ok || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func deepCopy(v reflect.Value) reflect.Value {
	t := v.Type()
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return out
		}
		out.Set(reflect.MakeSlice(t, v.Len(), v.Len()))
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
	case reflect.Map:
		if v.IsNil() {
			return out
		}
		out.Set(reflect.MakeMapWithSize(t, v.Len()))
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			out.Field(i).Set(deepCopy(v.Field(i)))
		}
	case reflect.Interface:
		if v.IsNil() {
			return out
		}
		out.Set(deepCopy(v.Elem()))
	default:
		out.Set(v)
	}
	return out
}

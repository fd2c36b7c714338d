package schema

import (
	"reflect"
	"strconv"
	"strings"
	"time"
)

// For derives a JSON Schema from T's struct tags:
//
//	json         property name; omitempty makes the field optional
//	description  property description
//	enum         comma-separated allowed values
//	minLength    minimum string length
//
// Pointer fields are optional and nullable.
func For[T any]() map[string]any {
	return FromType(reflect.TypeFor[T]())
}

// FromType is For for a reflect.Type.
func FromType(t reflect.Type) map[string]any {
	if t == nil {
		return map[string]any{"type": "null"}
	}
	if t.Kind() == reflect.Pointer {
		s := FromType(t.Elem())
		if name, ok := s["type"].(string); ok {
			s["type"] = []string{name, "null"}
		}
		return s
	}
	if t == reflect.TypeFor[time.Time]() {
		return map[string]any{"type": "string", "format": "date-time"}
	}

	if name, ok := scalarTypes[t.Kind()]; ok {
		return map[string]any{"type": name}
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": FromType(t.Elem())}
	case reflect.Map:
		return map[string]any{"type": "object", "additionalProperties": FromType(t.Elem())}
	case reflect.Struct:
		return objectFromStruct(t)
	}
	return map[string]any{}
}

var scalarTypes = map[reflect.Kind]string{
	reflect.String:  "string",
	reflect.Bool:    "boolean",
	reflect.Float32: "number",
	reflect.Float64: "number",
	reflect.Int:     "integer",
	reflect.Int8:    "integer",
	reflect.Int16:   "integer",
	reflect.Int32:   "integer",
	reflect.Int64:   "integer",
	reflect.Uint:    "integer",
	reflect.Uint8:   "integer",
	reflect.Uint16:  "integer",
	reflect.Uint32:  "integer",
	reflect.Uint64:  "integer",
}

func objectFromStruct(t reflect.Type) map[string]any {
	props := make(map[string]any, t.NumField())
	var required []string

	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name, optional, skip := jsonName(f)
		if skip {
			continue
		}

		prop := FromType(f.Type)
		if d := f.Tag.Get("description"); d != "" {
			prop["description"] = d
		}
		if e := f.Tag.Get("enum"); e != "" {
			prop["enum"] = StringEnum(strings.Split(e, ","))
		}
		if n, err := strconv.Atoi(f.Tag.Get("minLength")); err == nil {
			prop["minLength"] = n
		}
		props[name] = prop

		if !optional && f.Type.Kind() != reflect.Pointer {
			required = append(required, name)
		}
	}

	out := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// jsonName reads the json tag of f the way encoding/json does.
func jsonName(f reflect.StructField) (name string, omitempty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	for _, o := range strings.Split(opts, ",") {
		if o == "omitempty" || o == "omitzero" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

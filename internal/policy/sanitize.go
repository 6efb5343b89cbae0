package policy

import (
	"reflect"
	"strings"
)

// sanitize trims whitespace from every string reachable in a policy:
// string fields, []string elements, map[string]string keys and values, and
// the same inside nested structs and maps of maps.
func sanitize(v any) {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return
	}
	sanitizeValue(val.Elem())
}

func sanitizeValue(val reflect.Value) {
	switch val.Kind() {
	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			field := val.Field(i)
			if field.CanSet() {
				sanitizeValue(field)
			}
		}
	case reflect.String:
		if val.CanSet() {
			val.SetString(strings.TrimSpace(val.String()))
		}
	case reflect.Slice:
		if val.Type().Elem().Kind() == reflect.String {
			for j := 0; j < val.Len(); j++ {
				elem := val.Index(j)
				elem.SetString(strings.TrimSpace(elem.String()))
			}
		}
	case reflect.Map:
		if val.IsNil() || val.Type().Key().Kind() != reflect.String {
			return
		}
		trimmed := reflect.MakeMapWithSize(val.Type(), val.Len())
		iter := val.MapRange()
		for iter.Next() {
			key := reflect.ValueOf(strings.TrimSpace(iter.Key().String())).Convert(val.Type().Key())
			elem := reflect.New(val.Type().Elem()).Elem()
			elem.Set(iter.Value())
			sanitizeValue(elem)
			trimmed.SetMapIndex(key, elem)
		}
		val.Set(trimmed)
	}
}

package execution

import "reflect"

// Validator decides whether a returned result is usable. When it rejects a
// result it returns a short reason for the logs.
type Validator func(result any) (ok bool, reason string)

// DefaultValidator rejects nil results, empty maps and zero-valued records.
// Any other value, including empty strings and empty non-nil slices, is
// accepted.
func DefaultValidator(result any) (bool, string) {
	if result == nil {
		return false, "result is nil"
	}
	v := reflect.ValueOf(result)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return false, "result is nil"
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() || v.Len() == 0 {
			return false, "result map is empty"
		}
	case reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return false, "result is nil"
		}
	case reflect.Struct:
		if v.IsZero() {
			return false, "result record is empty"
		}
	}
	return true, ""
}

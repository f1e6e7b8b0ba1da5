package dedup

import (
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/roach88/exportgraph/internal/result"
)

// Check reports whether v is safe to use as key material: comparable by
// value all the way down. Slices, maps, funcs and channels are rejected
// because Go cannot compare them; non-nil pointers because they compare by
// identity, which makes two equal rows look distinct.
func Check(v any) error {
	return checkValue(reflect.ValueOf(v), "value")
}

func checkValue(v reflect.Value, path string) error {
	switch v.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return fmt.Errorf("%s: %s is not comparable", path, v.Type())
	case reflect.Pointer, reflect.UnsafePointer:
		if v.IsNil() {
			return nil
		}
		return fmt.Errorf("%s: %s compares by identity", path, v.Type())
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkValue(v.Elem(), path)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if err := checkValue(v.Field(i), path+"."+t.Field(i).Name); err != nil {
				return err
			}
		}
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := checkValue(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkElement[T any, K comparable](v T, key func(T) K, index int) error {
	if err := Check(v); err != nil {
		return hashabilityError(err, index, "element")
	}
	// An interface-typed key can still hold an uncomparable dynamic value,
	// which would otherwise panic inside the map.
	if reflect.TypeFor[K]().Kind() == reflect.Interface {
		if err := Check(key(v)); err != nil {
			return hashabilityError(err, index, "key")
		}
	}
	return nil
}

func hashabilityError(cause error, index int, what string) error {
	e := result.Wrapf(cause, result.KindHashability, "%s %d cannot be used for deduplication", what, index)
	return errors.WithHint(e, "the producer emitted a mutable or reference value; key on its content instead")
}

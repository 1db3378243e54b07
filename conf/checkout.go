package conf

import (
	"errors"
	"reflect"
	"strconv"
)

// Checkout populates the struct referenced by v from configuration. Fields
// are matched by their `conf` tag; a `conf_default` tag supplies the value
// when the variable is unset. Fields without a `conf` tag, or tagged
// `conf:"-"`, are left untouched. Supported field kinds: string, bool,
// ints, and floats.
func Checkout(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("conf: Checkout requires a non-nil pointer to a struct")
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return errors.New("conf: Checkout requires a pointer to a struct")
	}

	return checkoutStruct(rv)
}

func checkoutStruct(rv reflect.Value) error {
	rt := rv.Type()

	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		if !field.CanSet() {
			continue
		}

		tag := rt.Field(i).Tag

		// Embedded / nested structs are traversed when tagged with squash.
		if field.Kind() == reflect.Struct {
			if tag.Get("conf") == ",squash" || rt.Field(i).Anonymous {
				if err := checkoutStruct(field); err != nil {
					return err
				}
			}
			continue
		}

		key := tag.Get("conf")
		if key == "" || key == "-" {
			continue
		}

		value, ok := LookupEnv(key)
		if !ok || value == "" {
			value = tag.Get("conf_default")
		}
		if value == "" {
			continue
		}

		if err := assign(field, key, value); err != nil {
			return err
		}
	}

	return nil
}

func assign(field reflect.Value, key, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.New("conf: cannot parse " + key + " as bool")
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errors.New("conf: cannot parse " + key + " as int")
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.New("conf: cannot parse " + key + " as float")
		}
		field.SetFloat(f)
	default:
		return errors.New("conf: unsupported field kind for " + key)
	}

	return nil
}

package livestorage

import (
	"github.com/goliatone/go-livestorage/internal/hydrate"
)

// Decode converts the value stored under key into T. The boolean is false
// when the key is absent, in which case the zero T is returned.
func Decode[T any](view *View, key string) (T, bool, error) {
	return decodeWith(view, key, hydrate.NewDecoder[T]())
}

// DecodeStrict is Decode with unknown object fields rejected.
func DecodeStrict[T any](view *View, key string) (T, bool, error) {
	return decodeWith(view, key, hydrate.NewDecoder[T](hydrate.WithDisallowUnknownFields[T]()))
}

func decodeWith[T any](view *View, key string, decoder *hydrate.Decoder[T]) (T, bool, error) {
	var zero T
	value, ok := view.Get(key)
	if !ok {
		return zero, false, nil
	}
	result, err := decoder.Decode(hydrate.Context{Area: string(view.Area()), Key: key}, value)
	if err != nil {
		return zero, true, &AreaError{Op: "decode", Area: view.Area(), Key: key, Err: err}
	}
	return result, true, nil
}

package starbind

import (
	"fmt"
	"reflect"

	"go.starlark.net/starlark"
)

// toStarlarkValue converts a Go value passed to a script's main function
// into a starlark value.
func toStarlarkValue(v interface{}) starlark.Value {
	switch v := v.(type) {
	case starlark.Value:
		return v
	case uint8:
		return starlark.MakeUint64(uint64(v))
	case uint16:
		return starlark.MakeUint64(uint64(v))
	case uint32:
		return starlark.MakeUint64(uint64(v))
	case uint64:
		return starlark.MakeUint64(v)
	case uint:
		return starlark.MakeUint64(uint64(v))
	case int8:
		return starlark.MakeInt64(int64(v))
	case int16:
		return starlark.MakeInt64(int64(v))
	case int32:
		return starlark.MakeInt64(int64(v))
	case int64:
		return starlark.MakeInt64(v)
	case int:
		return starlark.MakeInt64(int64(v))
	case bool:
		return starlark.Bool(v)
	case string:
		return starlark.String(v)
	case []byte:
		return starlark.Bytes(v)
	case []string:
		return stringList(v)
	case nil:
		return starlark.None
	case error:
		return starlark.String(v.Error())
	}
	vval := reflect.ValueOf(v)
	if vval.Kind() == reflect.Slice {
		elems := make([]starlark.Value, vval.Len())
		for i := range elems {
			elems[i] = toStarlarkValue(vval.Index(i).Interface())
		}
		return starlark.NewList(elems)
	}
	return starlark.String(fmt.Sprintf("%v", v))
}

func stringList(s []string) *starlark.List {
	elems := make([]starlark.Value, len(s))
	for i := range s {
		elems[i] = starlark.String(s[i])
	}
	return starlark.NewList(elems)
}

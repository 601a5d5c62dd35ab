package decode

import (
	"math"
	"reflect"
	"strconv"

	"PPRealtime/tools/errs"

	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/mitchellh/mapstructure"
)

// Options tunes DecodeMap.
type Options struct {
	// "123" -> int, true -> "1" ...
	WeaklyTyped bool
	// unknown keys fail the decode
	Strict bool
}

func DefaultOptions() Options {
	return Options{WeaklyTyped: true}
}

// DecodeStruct decodes a *structpb.Struct into T using the `json` tags of T.
func DecodeStruct[T any](st *structpb.Struct, opts ...Options) (*T, error) {
	if st == nil {
		return nil, errs.ErrArgs.WrapMsg("payload missing")
	}
	return DecodeMap[T](st.AsMap(), opts...)
}

// DecodeMap is DecodeStruct for an already materialized map.
func DecodeMap[T any](m map[string]any, opts ...Options) (*T, error) {
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0]
	}

	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: o.WeaklyTyped,
		ErrorUnused:      o.Strict,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			wholeNumberHook,
			stringListHook,
		),
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "new decoder")
	}
	if err := dec.Decode(m); err != nil {
		return nil, errs.ErrArgs.WrapMsg("decode payload", "err", err.Error())
	}
	return &out, nil
}

// ReadString returns the string field key of st.
func ReadString(st *structpb.Struct, key string) (string, error) {
	v, ok := st.GetFields()[key]
	if !ok || v == nil {
		return "", errs.ErrArgs.WrapMsg("field missing", "field", key)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", errs.ErrArgs.WrapMsg("field is not a string", "field", key)
	}
	return s.StringValue, nil
}

// ReadStruct returns the nested object at key, or an empty Struct when it
// is missing or not an object.
func ReadStruct(st *structpb.Struct, key string) *structpb.Struct {
	if inner := st.GetFields()[key].GetStructValue(); inner != nil {
		return inner
	}
	return &structpb.Struct{}
}

// wholeNumberHook narrows JSON numbers (always float64) into integer fields
// and refuses fractions.
func wholeNumberHook(from, to reflect.Kind, data any) (any, error) {
	if from != reflect.Float64 {
		return data, nil
	}
	switch to {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	f := data.(float64)
	if f != math.Trunc(f) {
		return nil, errs.ErrArgs.WrapMsg("not a whole number", "value", f)
	}
	return int64(f), nil
}

var stringSlice = reflect.TypeOf([]string(nil))

// stringListHook turns a mixed []any into []string for []string targets.
// Ids sometimes arrive as numbers.
func stringListHook(from, to reflect.Type, data any) (any, error) {
	if to != stringSlice || from.Kind() != reflect.Slice {
		return data, nil
	}
	src, ok := data.([]any)
	if !ok {
		return data, nil
	}
	out := make([]string, 0, len(src))
	for _, it := range src {
		switch v := it.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			out = append(out, strconv.FormatBool(v))
		case nil:
		default:
			return nil, errs.ErrArgs.WrapMsg("list item is not a scalar")
		}
	}
	return out, nil
}

package endpoint

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// defaultFieldLimit is the maximum byte length of a decoded value when the
// field has no maxLength tag.
var defaultFieldLimit = 16 * 1024 // 16KB

// Unmarshal populates dst (must be a non-nil pointer to a struct) from the request.
//
// Supported struct tags:
//   - `body:""` the raw request body
//   - `header:"Name"` a request header; []string fields receive every value
//   - `query:"name"` a URL query parameter; []string fields receive every value
//   - `maxLength:"n"` maximum byte length of the value; "0" means no limit.
//     Without the tag a 16KB limit applies. Exceeding it is a 400, or a 413
//     for the body.
//
// Supported field types are string, []byte and []string. Untagged and
// unexported fields are left unchanged.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}
	root := v.Elem()
	if root.Kind() != reflect.Struct {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct"))
	}

	t := root.Type()
	bodyRead := false
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		limit, err := fieldLengthLimit(sf)
		if err != nil {
			return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}

		var values []string
		var found bool
		if _, ok := sf.Tag.Lookup("body"); ok {
			if bodyRead {
				return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: multiple body fields: %s", sf.Name))
			}
			bodyRead = true
			b, err := readBody(r, limit)
			if err != nil {
				return err
			}
			if err := setField(root.Field(i), [][]byte{b}); err != nil {
				return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
			}
			continue
		} else if name, ok := sf.Tag.Lookup("header"); ok {
			if name == "" {
				name = sf.Name
			}
			values, found = r.Header.Values(name), len(r.Header.Values(name)) > 0
		} else if name, ok := sf.Tag.Lookup("query"); ok {
			if name == "" {
				name = strings.ToLower(sf.Name)
			}
			if r.URL != nil {
				values, found = r.URL.Query()[name]
			}
		}
		if !found {
			continue
		}

		raw := make([][]byte, len(values))
		for j, s := range values {
			if limit > 0 && len(s) > limit {
				return newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: field %s exceeds %d bytes", sf.Name, limit))
			}
			raw[j] = []byte(s)
		}
		if err := setField(root.Field(i), raw); err != nil {
			return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}
	}
	return nil
}

func readBody(r *http.Request, limit int) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	var src io.Reader = r.Body
	if limit > 0 {
		src = io.LimitReader(r.Body, int64(limit)+1)
	}
	b, err := io.ReadAll(src)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, newEndpointError(http.StatusRequestEntityTooLarge, "", err)
		}
		return nil, newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: read body: %w", err))
	}
	if limit > 0 && len(b) > limit {
		return nil, newEndpointError(http.StatusRequestEntityTooLarge, "", fmt.Errorf("endpoint: decode: body exceeds %d bytes", limit))
	}
	return b, nil
}

func fieldLengthLimit(sf reflect.StructField) (int, error) {
	tag, ok := sf.Tag.Lookup("maxLength")
	if !ok {
		return defaultFieldLimit, nil
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(tag)
	if err != nil {
		return 0, fmt.Errorf("maxLength tag: %w", err)
	}
	if n < 0 {
		return 0, errors.New("maxLength tag must be non-negative")
	}
	return n, nil
}

func setField(v reflect.Value, values [][]byte) error {
	if len(values) == 0 {
		return nil
	}
	switch {
	case v.Kind() == reflect.String:
		v.SetString(string(values[0]))
	case v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8:
		v.SetBytes(values[0])
	case v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.String:
		out := reflect.MakeSlice(v.Type(), len(values), len(values))
		for i, b := range values {
			out.Index(i).SetString(string(b))
		}
		v.Set(out)
	default:
		return fmt.Errorf("unsupported field type %s", v.Type())
	}
	return nil
}

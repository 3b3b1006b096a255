package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwbudde/clsession/internal/hostbuf"
)

// dtype converts between command-line value lists and buffer bytes.
type dtype struct {
	size   int
	encode func(values []string) ([]byte, error)
	decode func(raw []byte) ([]string, error)
}

var dtypes = map[string]dtype{
	"int32": {
		size: 4,
		encode: func(values []string) ([]byte, error) {
			out := make([]int32, len(values))
			for i, v := range values {
				n, err := strconv.ParseInt(v, 10, 32)
				if err != nil {
					return nil, fmt.Errorf("value %d: %w", i, err)
				}
				out[i] = int32(n)
			}
			return hostbuf.Bytes(out), nil
		},
		decode: func(raw []byte) ([]string, error) {
			values, err := hostbuf.Decode[int32](raw)
			if err != nil {
				return nil, err
			}
			return format(values, func(v int32) string { return strconv.FormatInt(int64(v), 10) }), nil
		},
	},
	"float32": {
		size: 4,
		encode: func(values []string) ([]byte, error) {
			out, err := parseFloats(values)
			if err != nil {
				return nil, err
			}
			return hostbuf.Bytes(out), nil
		},
		decode: func(raw []byte) ([]string, error) {
			values, err := hostbuf.Decode[float32](raw)
			if err != nil {
				return nil, err
			}
			return format(values, formatFloat), nil
		},
	},
	"half": {
		size: 2,
		encode: func(values []string) ([]byte, error) {
			out, err := parseFloats(values)
			if err != nil {
				return nil, err
			}
			return hostbuf.Float16Bytes(out), nil
		},
		decode: func(raw []byte) ([]string, error) {
			values, err := hostbuf.Float16Decode(raw)
			if err != nil {
				return nil, err
			}
			return format(values, formatFloat), nil
		},
	},
}

func lookupDtype(name string) (dtype, error) {
	dt, ok := dtypes[name]
	if !ok {
		return dtype{}, fmt.Errorf("unknown dtype %q (want int32, float32 or half)", name)
	}
	return dt, nil
}

// splitValues parses "1,2, 3" into its fields. Empty input yields none.
func splitValues(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseFloats(values []string) ([]float32, error) {
	out := make([]float32, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

func format[T any](values []T, f func(T) string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = f(v)
	}
	return out
}

// Package transform provides payload filters for the watch stream.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/itchyny/gojq"
	"go.uber.org/zap"
)

// UpdateFilterFunc reshapes one streamed payload. The second return value
// reports whether the payload should be kept; false drops it.
type UpdateFilterFunc func(topic string, payload any) (any, bool)

// JqFilter compiles a JQ query into an UpdateFilterFunc.
//
// The query runs against the payload converted to primitive JSON form and
// has access to the $topic variable. No results drops the payload; multiple
// results are collected into an array. Runtime errors are logged (when a
// logger is provided) and pass the payload through unchanged, so a bad
// query never breaks the stream.
func JqFilter(jqQuery string, logger *zap.Logger) (UpdateFilterFunc, error) {
	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JQ query '%s': %w", jqQuery, err)
	}

	compiledQuery, err := gojq.Compile(query, gojq.WithVariables([]string{"$topic"}))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JQ query '%s': %w", jqQuery, err)
	}

	return func(topic string, payload any) (any, bool) {
		jqInput, err := toPrimitive(payload)
		if err != nil {
			if logger != nil {
				logger.Error("JQ filter: failed to convert payload",
					zap.String("jq_query", jqQuery),
					zap.String("topic", topic),
					zap.Error(err))
			}
			return payload, true
		}

		iter := compiledQuery.RunWithContext(context.Background(), jqInput, topic)

		var results []any
		for {
			result, hasResult := iter.Next()
			if !hasResult {
				break
			}
			if execErr, ok := result.(error); ok {
				if logger != nil {
					logger.Error("JQ filter: execution error",
						zap.String("jq_query", jqQuery),
						zap.String("topic", topic),
						zap.Error(execErr))
				}
				return payload, true
			}
			results = append(results, result)
		}

		switch len(results) {
		case 0:
			return nil, false
		case 1:
			return results[0], true
		default:
			return results, true
		}
	}, nil
}

// toPrimitive converts a payload to the primitive form gojq operates on.
// Structs and collections of structs go through a JSON round-trip; maps,
// slices of primitives, and scalars are used directly.
func toPrimitive(payload any) (any, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return v, nil // not JSON, treat as plain string
		}
		return parsed, nil
	case []byte:
		var parsed any
		if err := json.Unmarshal(v, &parsed); err != nil {
			return string(v), nil
		}
		return parsed, nil
	}

	if !needsRoundTrip(payload) {
		return payload, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var primitive any
	if err := json.Unmarshal(data, &primitive); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return primitive, nil
}

// needsRoundTrip reports whether the value contains structs that must be
// converted to maps before gojq can process them.
func needsRoundTrip(v any) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return true
	case reflect.Slice, reflect.Array:
		elem := t.Elem()
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		return elem.Kind() == reflect.Struct
	default:
		return false
	}
}

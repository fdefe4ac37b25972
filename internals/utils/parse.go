package utils

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// ParseMap decodes a loosely typed configuration section into out by going
// through its JSON form.
func ParseMap[T any](object any, out *T) error {
	bytes, err := json.Marshal(object)
	if err != nil {
		return err
	}

	var temp T
	if err = json.Unmarshal(bytes, &temp); err != nil {
		return err
	}
	*out = temp
	return nil
}

func ParseMapKey[T any](object map[string]any, key string, out *T) error {
	field, exists := object[key]
	if !exists {
		return fmt.Errorf("key %s doesn't exists in map", key)
	}

	bytes, err := json.Marshal(field)
	if err != nil {
		return err
	}

	var temp T
	if err = json.Unmarshal(bytes, &temp); err != nil {
		return fmt.Errorf("type for %s mismatch %s", key, reflect.TypeOf(field))
	}
	*out = temp
	return nil
}

// WithoutKeys returns a shallow copy of object minus the given keys.
func WithoutKeys(object map[string]any, keys ...string) map[string]any {
	copied := make(map[string]any, len(object))
	for key, value := range object {
		copied[key] = value
	}
	for _, key := range keys {
		delete(copied, key)
	}
	return copied
}

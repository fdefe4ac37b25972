package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Host  string   `json:"host"`
	Port  int      `json:"port"`
	Names []string `json:"names"`
}

func TestParseMap(t *testing.T) {
	var out sample
	err := ParseMap(map[string]any{"host": "rabbit", "port": 5672, "names": []any{"a", "b"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, sample{Host: "rabbit", Port: 5672, Names: []string{"a", "b"}}, out)
}

func TestParseMap_TypeMismatchLeavesOutUntouched(t *testing.T) {
	out := sample{Host: "kept"}
	err := ParseMap(map[string]any{"port": "not a number"}, &out)
	assert.Error(t, err)
	assert.Equal(t, "kept", out.Host)
}

func TestParseMapKey(t *testing.T) {
	config := map[string]any{"driver": "amqp", "port": 5672}

	var driver string
	require.NoError(t, ParseMapKey(config, "driver", &driver))
	assert.Equal(t, "amqp", driver)

	var missing string
	err := ParseMapKey(config, "queue", &missing)
	assert.EqualError(t, err, "key queue doesn't exists in map")

	var wrong []string
	err = ParseMapKey(config, "port", &wrong)
	assert.EqualError(t, err, "type for port mismatch int")
}

func TestWithoutKeys(t *testing.T) {
	config := map[string]any{"driver": "amqp", "out": []any{"queue"}, "host": "rabbit"}

	copied := WithoutKeys(config, "driver", "out")
	assert.Equal(t, map[string]any{"host": "rabbit"}, copied)
	assert.Len(t, config, 3)
}

package bulk

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quix-labs/el-amqp-transport/internals/types"
)

func TestAssembleBulkPayload_IndexScenario(t *testing.T) {
	op, err := types.NewIndexOperation(map[string]any{"title": "hello"}, "42", types.Options{Index: "blog", Type: "post"})
	require.NoError(t, err)

	payload, err := AssembleBulkPayload(types.Options{}, op)
	require.NoError(t, err)
	assert.Equal(t, "{\"index\":{\"_index\":\"blog\",\"_type\":\"post\",\"_id\":\"42\"}}\n{\"title\":\"hello\"}\n", payload)
}

func TestAssembleBulkPayload_DeleteScenario(t *testing.T) {
	op, err := types.NewDeleteOperation("42", types.Options{Index: "blog", Type: "post"})
	require.NoError(t, err)

	payload, err := AssembleBulkPayload(types.Options{}, op)
	require.NoError(t, err)
	assert.Equal(t, "{\"delete\":{\"_index\":\"blog\",\"_type\":\"post\",\"_id\":\"42\"}}\n", payload)
}

func TestBuildMeta_FallsBackToDefaults(t *testing.T) {
	defaults := types.Options{Index: "default-index", Type: "doc"}

	tests := []struct {
		name     string
		options  types.Options
		expected Meta
	}{
		{
			name:     "no override",
			options:  types.Options{},
			expected: Meta{Index: "default-index", Type: "doc", ID: "1"},
		},
		{
			name:     "index override",
			options:  types.Options{Index: "blog"},
			expected: Meta{Index: "blog", Type: "doc", ID: "1"},
		},
		{
			name:     "full override",
			options:  types.Options{Index: "blog", Type: "post"},
			expected: Meta{Index: "blog", Type: "post", ID: "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := types.NewDeleteOperation("1", tt.options)
			require.NoError(t, err)

			action, err := BuildMeta(op, defaults)
			require.NoError(t, err)
			assert.Equal(t, map[string]Meta{"delete": tt.expected}, action)
		})
	}
}

func TestBuildMeta_OmitsUnsetIndexAndType(t *testing.T) {
	line, err := SerializeLine(types.DeleteOperation{ID: "7"}, types.Options{})
	require.NoError(t, err)
	assert.Equal(t, `{"delete":{"_id":"7"}}`, line)
}

func TestBuildMeta_RejectsHandBuiltOperationWithoutID(t *testing.T) {
	_, err := BuildMeta(types.IndexOperation{Document: map[string]any{}}, types.Options{})
	assert.True(t, errors.Is(err, types.ErrMissingIdentifier))

	_, err = SerializeLine(&types.DeleteOperation{}, types.Options{})
	assert.True(t, errors.Is(err, types.ErrMissingIdentifier))
}

func TestSerializeLine_IndexProducesTwoJSONLines(t *testing.T) {
	documents := []any{
		map[string]any{"title": "hello"},
		map[string]any{"nested": map[string]any{"a": []int{1, 2}}, "text": "multi\nline"},
		json.RawMessage("{\n  \"pretty\": true\n}"),
		[]string{"x"},
	}

	for _, document := range documents {
		op, err := types.NewIndexOperation(document, "doc-1", types.Options{Index: "i"})
		require.NoError(t, err)

		line, err := SerializeLine(op, types.Options{})
		require.NoError(t, err)

		lines := strings.Split(line, "\n")
		require.Len(t, lines, 2)
		for _, l := range lines {
			assert.True(t, json.Valid([]byte(l)), "invalid json line %q", l)
		}

		var action map[string]Meta
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &action))
		assert.Equal(t, "doc-1", action["index"].ID)
	}
}

func TestSerializeLine_DeleteProducesOneJSONLine(t *testing.T) {
	op, err := types.NewDeleteOperation("abc", types.Options{Index: "i", Type: "t"})
	require.NoError(t, err)

	line, err := SerializeLine(op, types.Options{})
	require.NoError(t, err)
	assert.NotContains(t, line, "\n")
	assert.True(t, json.Valid([]byte(line)))
}

func TestSerializeLine_InvalidRawDocument(t *testing.T) {
	op, err := types.NewIndexOperation(json.RawMessage("{not json"), "1", types.Options{})
	require.NoError(t, err)

	_, err = SerializeLine(op, types.Options{})
	assert.Error(t, err)
}

func TestAssembleBulkPayload_RawPassThrough(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected string
	}{
		{name: "missing newline", payload: `{"delete":{"_id":"1"}}`, expected: "{\"delete\":{\"_id\":\"1\"}}\n"},
		{name: "already terminated", payload: "{\"delete\":{\"_id\":\"1\"}}\n", expected: "{\"delete\":{\"_id\":\"1\"}}\n"},
		{name: "multi line", payload: "{\"index\":{\"_id\":\"1\"}}\n{\"a\":1}", expected: "{\"index\":{\"_id\":\"1\"}}\n{\"a\":1}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := types.NewRawBulkOperation(tt.payload)
			require.NoError(t, err)

			payload, err := AssembleBulkPayload(types.Options{}, op)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, payload)
		})
	}
}

func TestAssembleBulkPayload_IsIdempotent(t *testing.T) {
	index, _ := types.NewIndexOperation(map[string]any{"a": 1}, "1", types.Options{Index: "i"})
	del, _ := types.NewDeleteOperation("2", types.Options{Index: "i"})

	first, err := AssembleBulkPayload(types.Options{}, index, del)
	require.NoError(t, err)

	second, err := AssembleBulkPayload(types.Options{}, types.RawBulkOperation{Payload: first})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first, EnsureTrailingNewline(first))
	assert.False(t, strings.HasSuffix(first, "\n\n"))
}

func TestAssembleBulkPayload_MultipleOperations(t *testing.T) {
	index, _ := types.NewIndexOperation(map[string]any{"a": 1}, "1", types.Options{})
	del, _ := types.NewDeleteOperation("2", types.Options{})

	payload, err := AssembleBulkPayload(types.Options{Index: "i"}, index, del)
	require.NoError(t, err)
	assert.Equal(t, "{\"index\":{\"_index\":\"i\",\"_id\":\"1\"}}\n{\"a\":1}\n{\"delete\":{\"_index\":\"i\",\"_id\":\"2\"}}\n", payload)
}

func TestAssembleBulkPayload_Empty(t *testing.T) {
	_, err := AssembleBulkPayload(types.Options{})
	assert.ErrorIs(t, err, types.ErrEmptyPayload)

	_, err = AssembleBulkPayload(types.Options{}, types.RawBulkOperation{})
	assert.ErrorIs(t, err, types.ErrEmptyPayload)
}

func TestAssembleBulkPayload_NilOperation(t *testing.T) {
	ops := []types.Operation{
		nil,
		(*types.IndexOperation)(nil),
		(*types.DeleteOperation)(nil),
		(*types.RawBulkOperation)(nil),
	}
	for _, op := range ops {
		assert.NotPanics(t, func() {
			_, err := AssembleBulkPayload(types.Options{}, op)
			assert.ErrorIs(t, err, types.ErrUnsupportedOperation)
		})
	}

	_, err := BuildMeta(nil, types.Options{})
	assert.ErrorIs(t, err, types.ErrUnsupportedOperation)
}

func TestParseRequest(t *testing.T) {
	for _, method := range []string{"GET", "POST", "PUT", "DELETE"} {
		op, err := ParseRequest(BulkPath, method, "{\"delete\":{\"_id\":\"1\"}}")
		require.NoError(t, err)
		assert.Equal(t, "{\"delete\":{\"_id\":\"1\"}}", op.Payload)
	}

	for _, path := range []string{"/_status", "/_search", "_bulk", "/blog/_bulk", ""} {
		_, err := ParseRequest(path, "POST", "x")
		assert.ErrorIs(t, err, types.ErrUnsupportedOperation, path)
	}
}

func TestUnsupported(t *testing.T) {
	err := Unsupported("search")
	assert.ErrorIs(t, err, types.ErrUnsupportedOperation)
	assert.Contains(t, err.Error(), "search not supported over this transport")
}

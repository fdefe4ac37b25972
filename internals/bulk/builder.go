// Package bulk serializes index and delete operations into the newline
// delimited body accepted by the Elasticsearch _bulk endpoint.
package bulk

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quix-labs/el-amqp-transport/internals/types"
)

// Meta is the body of an action line.
type Meta struct {
	Index string `json:"_index,omitempty"`
	Type  string `json:"_type,omitempty"`
	ID    string `json:"_id"`
}

// BuildMeta returns the action line object for an index or delete operation.
func BuildMeta(op types.Operation, defaults types.Options) (map[string]Meta, error) {
	if isNil(op) {
		return nil, errNilOperation()
	}
	var (
		options types.Options
		id      string
	)
	switch o := op.(type) {
	case *types.IndexOperation:
		options, id = o.Options, o.ID
	case types.IndexOperation:
		options, id = o.Options, o.ID
	case *types.DeleteOperation:
		options, id = o.Options, o.ID
	case types.DeleteOperation:
		options, id = o.Options, o.ID
	default:
		return nil, &types.UnsupportedOperationError{Op: string(op.Kind()), Reason: "operation has no action line"}
	}
	if id == "" {
		return nil, &types.MissingIdentifierError{Op: op.Kind()}
	}
	options = options.Merge(defaults)
	return map[string]Meta{
		string(op.Kind()): {Index: options.Index, Type: options.Type, ID: id},
	}, nil
}

// SerializeLine encodes one operation without its trailing newline. Index
// operations produce the action line followed by the document line.
func SerializeLine(op types.Operation, defaults types.Options) (string, error) {
	if isNil(op) {
		return "", errNilOperation()
	}
	if raw, ok := rawPayload(op); ok {
		return raw, nil
	}

	action, err := BuildMeta(op, defaults)
	if err != nil {
		return "", err
	}
	line, err := json.Marshal(action)
	if err != nil {
		return "", fmt.Errorf("cannot encode %s action: %w", op.Kind(), err)
	}

	document, hasDocument := documentOf(op)
	if !hasDocument {
		return string(line), nil
	}
	data, err := json.Marshal(document)
	if err != nil {
		return "", fmt.Errorf("cannot encode %s document: %w", op.Kind(), err)
	}
	return string(line) + "\n" + string(data), nil
}

// AssembleBulkPayload concatenates the serialized operations. Raw bulk
// payloads are used verbatim. The result always ends with exactly one
// newline added by normalization.
func AssembleBulkPayload(defaults types.Options, ops ...types.Operation) (string, error) {
	var body strings.Builder
	for _, op := range ops {
		line, err := SerializeLine(op, defaults)
		if err != nil {
			return "", err
		}
		body.WriteString(EnsureTrailingNewline(line))
	}
	if body.Len() == 0 {
		return "", types.ErrEmptyPayload
	}
	return body.String(), nil
}

// EnsureTrailingNewline appends a newline only when s does not already end
// with one, so it is idempotent.
func EnsureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// ParseRequest maps a generic path/method request onto a raw bulk operation.
// Only BulkPath is accepted, with any method.
func ParseRequest(path string, method string, payload string) (*types.RawBulkOperation, error) {
	if path != BulkPath {
		return nil, &types.UnsupportedOperationError{
			Op:     fmt.Sprintf("%s %s", method, path),
			Reason: "only " + BulkPath + " requests are supported over this transport",
		}
	}
	return types.NewRawBulkOperation(payload)
}

// Unsupported is the error every search call returns.
func Unsupported(op string) error {
	return &types.UnsupportedOperationError{Op: op, Reason: op + " not supported over this transport"}
}

func errNilOperation() error {
	return &types.UnsupportedOperationError{Op: "<nil>", Reason: "operation is nil"}
}

func isNil(op types.Operation) bool {
	switch o := op.(type) {
	case nil:
		return true
	case *types.IndexOperation:
		return o == nil
	case *types.DeleteOperation:
		return o == nil
	case *types.RawBulkOperation:
		return o == nil
	}
	return false
}

func rawPayload(op types.Operation) (string, bool) {
	switch o := op.(type) {
	case *types.RawBulkOperation:
		return o.Payload, true
	case types.RawBulkOperation:
		return o.Payload, true
	}
	return "", false
}

func documentOf(op types.Operation) (any, bool) {
	switch o := op.(type) {
	case *types.IndexOperation:
		return o.Document, true
	case types.IndexOperation:
		return o.Document, true
	}
	return nil, false
}

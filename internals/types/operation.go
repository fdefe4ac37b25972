package types

type OperationKind string

const (
	KindIndex   OperationKind = "index"
	KindDelete  OperationKind = "delete"
	KindRawBulk OperationKind = "bulk"
)

// Options overrides the session-level _index and _type for a single call.
// Empty fields fall back to the defaults.
type Options struct {
	Index string `json:"_index,omitempty" yaml:"index"`
	Type  string `json:"_type,omitempty" yaml:"type"`
}

// Merge returns o with empty fields taken from defaults.
func (o Options) Merge(defaults Options) Options {
	if o.Index == "" {
		o.Index = defaults.Index
	}
	if o.Type == "" {
		o.Type = defaults.Type
	}
	return o
}

type Operation interface {
	Kind() OperationKind
}

type IndexOperation struct {
	Options  Options
	ID       string
	Document any
}

type DeleteOperation struct {
	Options Options
	ID      string
}

// RawBulkOperation carries a pre-formatted bulk body that is published as is.
type RawBulkOperation struct {
	Payload string
}

func (IndexOperation) Kind() OperationKind   { return KindIndex }
func (DeleteOperation) Kind() OperationKind  { return KindDelete }
func (RawBulkOperation) Kind() OperationKind { return KindRawBulk }

func NewIndexOperation(document any, id string, options Options) (*IndexOperation, error) {
	if id == "" {
		return nil, &MissingIdentifierError{Op: KindIndex}
	}
	return &IndexOperation{Options: options, ID: id, Document: document}, nil
}

func NewDeleteOperation(id string, options Options) (*DeleteOperation, error) {
	if id == "" {
		return nil, &MissingIdentifierError{Op: KindDelete}
	}
	return &DeleteOperation{Options: options, ID: id}, nil
}

func NewRawBulkOperation(payload string) (*RawBulkOperation, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	return &RawBulkOperation{Payload: payload}, nil
}

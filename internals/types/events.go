package types

type Event interface {
	Source() string
}

type IndexEvent struct {
	Subscriber string
	Options    Options
	Reference  string
	Document   any
}

type DeleteEvent struct {
	Subscriber string
	Options    Options
	Reference  string
}

// BulkEvent carries a raw bulk payload drained from the queue. Done, when
// set, is called once with the publish outcome.
type BulkEvent struct {
	Subscriber string
	Payload    string
	Done       func(err error)
}

func (e IndexEvent) Source() string  { return e.Subscriber }
func (e DeleteEvent) Source() string { return e.Subscriber }
func (e BulkEvent) Source() string   { return e.Subscriber }

func (e BulkEvent) Complete(err error) {
	if e.Done != nil {
		e.Done(err)
	}
}

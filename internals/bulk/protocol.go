package bulk

// Fixed contract between every producer writing to the queue and the
// consumers expecting the bulk format. Changing any of these is a breaking
// protocol change.
const (
	Exchange        = "elasticsearch"
	ExchangeKind    = "direct"
	RoutingKey      = "elasticsearch"
	ContentType     = "text/plain"
	ContentEncoding = "UTF-8"

	BulkPath = "/_bulk"
)

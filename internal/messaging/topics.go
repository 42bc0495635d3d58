package messaging

// TopicOrderPaid carries domain.OrderPaidEvent, keyed by order id.
const TopicOrderPaid = "order.paid"

const (
	headerContentType = "content-type"
	contentTypeJSON   = "application/json"
)

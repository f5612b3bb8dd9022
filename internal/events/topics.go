package events

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicOrderCompleted     = "order.completed"
	TopicPaymentChanged     = "order.payment.changed"
	TopicOrderDeleted       = "order.deleted"
	TopicStockLow           = "inventory.stock.low"
)

// Partition key = order_id so all events of one order keep their order.
func PartitionKey(id string) []byte { return []byte(id) }

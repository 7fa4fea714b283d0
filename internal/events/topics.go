package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicOrderCreated    = "order.created"
	TopicOrderPaid       = "order.paid"
	TopicPaymentFailed   = "payment.failed"
	TopicPaymentExpired  = "payment.expired"
	TopicCodeRedeemed    = "code.redeemed"
	TopicCartAbandoned   = "cart.abandoned"
	TopicContactReceived = "contact.received"
)

package rabbitmq

const (
	INSPECTION_EVENTS_QUEUE = "inspections.events"
	PUSH_DELIVERY_QUEUE     = "notifications.push"
)

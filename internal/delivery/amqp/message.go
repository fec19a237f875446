package amqp

import (
	amqplib "github.com/rabbitmq/amqp091-go"

	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
)

var _ domain.IncomingMessage = (*incomingDelivery)(nil)

// incomingDelivery adapts an amqp delivery to the transport-agnostic message
// facade the processing service acks through.
type incomingDelivery struct {
	d amqplib.Delivery
}

func (m *incomingDelivery) Body() []byte {
	return m.d.Body
}

func (m *incomingDelivery) Ack() error {
	return m.d.Ack(false)
}

func (m *incomingDelivery) Nack(requeue bool) error {
	return m.d.Nack(false, requeue)
}

func (m *incomingDelivery) Reject() error {
	return m.d.Reject(false)
}

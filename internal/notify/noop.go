package notify

import "context"

// NoopGateway is a Gateway that does nothing (used when NATS is not configured).
type NoopGateway struct{}

func (n *NoopGateway) Send(ctx context.Context, msg Message) error {
	return nil
}

func (n *NoopGateway) Close() error {
	return nil
}

package kafka

import "context"

// Publisher delivers one keyed message to a topic chosen at construction.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

package publisher

// Publisher delivers newly stored promotions to downstream consumers.
type Publisher interface {
	// Publish appends a promotion payload to the stream
	Publish(message []byte) error

	// TrimStream trims the stream to the configured maximum length
	TrimStream() error

	// Close closes the publisher connection
	Close() error
}

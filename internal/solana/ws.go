package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to program logs matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// SubscribeBlocks subscribes to confirmed blocks with full transactions.
	SubscribeBlocks(ctx context.Context, filter BlockFilter) (<-chan BlockNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these program IDs.
	Mentions []string
}

// BlockFilter defines subscription filter for blocks.
type BlockFilter struct {
	// MentionsAccountOrProgram limits blocks to transactions touching this key.
	// Empty subscribes to all blocks.
	MentionsAccountOrProgram string
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// BlockNotification represents a block subscription message.
type BlockNotification struct {
	Slot  int64
	Block *Block // nil when the node reports a skipped slot
	Err   interface{}
}

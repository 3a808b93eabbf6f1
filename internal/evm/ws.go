package evm

// HeadsSource yields new-block notifications. The chain writer uses it to
// trigger receipt checks instead of hammering the node on a timer.
type HeadsSource interface {
	// Heads returns the stream of newHeads notifications. The channel is
	// closed when the source shuts down.
	Heads() <-chan Head

	// Close shuts the source down.
	Close() error
}

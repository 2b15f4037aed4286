package core

// Frame is one encoded protocol message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking. A full buffer is reported as an
	// error and the frame is dropped.
	TrySend(Frame) error
	Close()
}

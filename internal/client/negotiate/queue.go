package negotiate

import "encoding/json"

// CandidateQueue buffers candidates that arrive before the remote
// description is set. It is not safe for concurrent use; PeerLink guards it.
type CandidateQueue struct {
	items []json.RawMessage
}

func (q *CandidateQueue) Push(c json.RawMessage) {
	q.items = append(q.items, c)
}

// Drain returns the buffered candidates in arrival order and empties the
// queue.
func (q *CandidateQueue) Drain() []json.RawMessage {
	out := q.items
	q.items = nil
	return out
}

func (q *CandidateQueue) Len() int { return len(q.items) }

func (q *CandidateQueue) Reset() { q.items = nil }

package relay

import "sync"

// TranscriptDepth is the number of recent messages retained per pairing,
// kept only to give moderators context when a report is filed.
const TranscriptDepth = 5

// TranscriptEntry is a single relayed message in a pairing's recent history.
type TranscriptEntry struct {
	From string `json:"from"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// Transcripts keeps the last few messages per active pairing in memory.
// It is goroutine-safe and uses a fixed ring per pairing.
type Transcripts struct {
	mu    sync.RWMutex
	rings map[string]*ring // pair ID -> ring
}

type ring struct {
	items []TranscriptEntry
	pos   int
	count int
}

// NewTranscripts creates an empty transcript cache.
func NewTranscripts() *Transcripts {
	return &Transcripts{rings: make(map[string]*ring)}
}

// Add appends a message to the pairing's ring, overwriting the oldest entry
// once the ring is full.
func (t *Transcripts) Add(pairID string, entry TranscriptEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rings[pairID]
	if !ok {
		r = &ring{items: make([]TranscriptEntry, TranscriptDepth)}
		t.rings[pairID] = r
	}

	r.items[r.pos] = entry
	r.pos = (r.pos + 1) % TranscriptDepth
	if r.count < TranscriptDepth {
		r.count++
	}
}

// Snapshot returns the retained messages in chronological order.
func (t *Transcripts) Snapshot(pairID string) []TranscriptEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.rings[pairID]
	if !ok {
		return nil
	}

	out := make([]TranscriptEntry, r.count)
	start := (r.pos - r.count + TranscriptDepth) % TranscriptDepth
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(start+i)%TranscriptDepth]
	}
	return out
}

// Remove drops the ring for a pairing once it ends.
func (t *Transcripts) Remove(pairID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rings, pairID)
}

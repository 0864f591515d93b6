package room

import "time"

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Backoff produces the capped exponential delay sequence used between
// reconnect attempts: 1s, 2s, 4s, ... capped at 30s. Zero values use
// the defaults.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	attempt int
}

// Next returns the delay before the upcoming attempt and advances the
// sequence.
func (b *Backoff) Next() time.Duration {
	initial := b.Initial
	if initial <= 0 {
		initial = initialBackoff
	}
	limit := b.Max
	if limit <= 0 {
		limit = maxBackoff
	}
	d := initial << b.attempt
	if d > limit || d <= 0 {
		d = limit
	}
	b.attempt++
	return d
}

// Reset restarts the sequence after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}

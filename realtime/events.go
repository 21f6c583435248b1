package realtime

import (
	"sync"
	"time"
)

// timestampLayout is ISO-8601 with microsecond precision in UTC.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Event records one observable moment of the streaming protocol: a frame
// sent, a frame received, or a local decision. Raw audio bytes never
// appear in an event; binary payloads are redacted to their size.
type Event struct {
	Type         string         `json:"type"`
	Sequence     int            `json:"sequence"`
	TimestampUTC string         `json:"timestamp_utc"`
	ElapsedMS    *int64         `json:"elapsed_ms_since_audio_start,omitempty"`
	Size         *int           `json:"size,omitempty"`
	Redacted     bool           `json:"redacted,omitempty"`
	Message      map[string]any `json:"message,omitempty"`
}

// eventLog is the append-only record of one infer invocation. Sequence
// numbers start at 0 and increment by exactly one. Elapsed times are
// measured from a monotonic baseline set at the first audio append, so
// the log stays meaningful across wall-clock jumps.
type eventLog struct {
	mu         sync.Mutex
	events     []Event
	seq        int
	audioStart time.Time
}

func newEventLog() *eventLog {
	return &eventLog{}
}

// append stamps the event with the next sequence number, the wall-clock
// timestamp, and the elapsed time when the audio baseline is set.
func (l *eventLog) append(evt Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	evt.Sequence = l.seq
	l.seq++
	evt.TimestampUTC = time.Now().UTC().Format(timestampLayout)
	if !l.audioStart.IsZero() && evt.ElapsedMS == nil {
		ms := time.Since(l.audioStart).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		evt.ElapsedMS = &ms
	}
	l.events = append(l.events, evt)
}

// markAudioStart sets the monotonic baseline and appends the first
// input_audio_buffer.append event with an elapsed time of exactly zero.
func (l *eventLog) markAudioStart(evt Event) {
	l.mu.Lock()
	if l.audioStart.IsZero() {
		l.audioStart = time.Now()
		zero := int64(0)
		evt.ElapsedMS = &zero
	}
	l.mu.Unlock()
	l.append(evt)
}

// snapshot returns a copy of the recorded events.
func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func sizeOf(n int) *int {
	return &n
}

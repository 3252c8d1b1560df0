package sources

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/telemetry"
)

// DefaultLiveCapacity caps how many records a live feed keeps.
const DefaultLiveCapacity = 50000

// Live keeps a trailing window of records published on a NATS subject, one
// JSON record per message.
type Live struct {
	Subject  string
	Kind     telemetry.Kind
	Window   time.Duration
	Capacity int
	Decoder  telemetry.Decoder

	log *zap.SugaredLogger
	nc  *nats.Conn
	sub *nats.Subscription

	mu      sync.Mutex
	buf     []telemetry.Record
	dropped int
	dirty   bool
}

func NewLive(subject string, kind telemetry.Kind, window time.Duration, log *zap.SugaredLogger) *Live {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if window <= 0 {
		window = DefaultInterval
	}
	return &Live{Subject: subject, Kind: kind, Window: window, Capacity: DefaultLiveCapacity, log: log}
}

// Connect dials the NATS server and subscribes to the subject.
func (l *Live) Connect(url string) error {
	nc, err := nats.Connect(url, nats.Name("flowscope"))
	if err != nil {
		return fmt.Errorf("connect to nats %s: %w", url, err)
	}
	l.log.Infof("Connected to NATS server at %s", url)
	sub, err := nc.Subscribe(l.Subject, func(msg *nats.Msg) {
		l.Add(msg.Data)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", l.Subject, err)
	}
	l.nc, l.sub = nc, sub
	l.log.Infof("Subscribed to '%s'", l.Subject)
	return nil
}

// Add decodes one message into the buffer. Undecodable messages are counted and dropped.
func (l *Live) Add(data []byte) {
	r, err := l.Decoder.DecodeOne(l.Kind, data)
	if err != nil {
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
		l.log.Warnf("Dropping live record: %v", err)
		return
	}
	l.mu.Lock()
	l.buf = append(l.buf, r)
	if over := len(l.buf) - l.Capacity; l.Capacity > 0 && over > 0 {
		l.buf = slices.Delete(l.buf, 0, over)
		l.dropped += over
	}
	l.dirty = true
	l.mu.Unlock()
}

// Snapshot drops records more than Window older than the newest one and
// returns a copy of the rest in arrival order. Record time, not wall time,
// defines the window so replayed feeds behave like live ones.
func (l *Live) Snapshot() []telemetry.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	var newest time.Time
	for _, r := range l.buf {
		if r.Time.After(newest) {
			newest = r.Time
		}
	}
	cutoff := newest.Add(-l.Window)
	l.buf = slices.DeleteFunc(l.buf, func(r telemetry.Record) bool { return r.Time.Before(cutoff) })
	l.dirty = false
	return slices.Clone(l.buf)
}

// Dropped is the number of records discarded as undecodable or over capacity.
func (l *Live) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Run calls flush with the current window every interval while new records
// have arrived, until ctx is done.
func (l *Live) Run(ctx context.Context, interval time.Duration, flush func([]telemetry.Record)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			dirty := l.dirty
			l.mu.Unlock()
			if dirty {
				flush(l.Snapshot())
			}
		}
	}
}

func (l *Live) Close() {
	if l.sub != nil {
		if err := l.sub.Unsubscribe(); err != nil {
			l.log.Warnf("Error unsubscribing from %s: %v", l.Subject, err)
		}
	}
	if l.nc != nil {
		l.nc.Close()
		l.log.Infof("NATS connection closed.")
	}
}

package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher ships a batch of aggregated records, typically to a kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush at least this often
	CountThreshold int           // flush once this many distinct records are held
	Topic          string
	Publisher      Publisher
}

// groupKeys are the fields that split otherwise identical records into separate
// entries. Other fields, such as prices, only keep their latest value.
var groupKeys = []string{"session", "round", "code", "backend", "topic"}

// AggregatedLogEntry is one distinct record and how often it repeated.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller"`
	Session   string                 `json:"session,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogBatch is the payload of one publish.
type LogBatch struct {
	FlushedAt time.Time            `json:"flushed_at"`
	Dropped   int64                `json:"dropped,omitempty"`
	Entries   []AggregatedLogEntry `json:"entries"`
}

// LogCollector folds repeated warnings and errors together and publishes them in
// batches from one goroutine. A batch that finds the send queue full is dropped and
// counted in the next one.
type LogCollector struct {
	cfg     CollectionConfig
	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry
	closed  bool
	queue   chan []AggregatedLogEntry
	dropped atomic.Int64
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	now     func() time.Time
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		entries: make(map[string]*AggregatedLogEntry),
		queue:   make(chan []AggregatedLogEntry, 4),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}
	c.wg.Add(2)
	go c.tick()
	go c.send()
	return c
}

// AddLog records one occurrence.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := c.now()
	key := groupKey(level, message, caller, fields)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		e.Fields = fields
		return
	}
	session, _ := fields["session"].(string)
	c.entries[key] = &AggregatedLogEntry{
		Level:     level,
		Message:   message,
		Caller:    caller,
		Session:   session,
		Fields:    fields,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	if len(c.entries) >= c.cfg.CountThreshold {
		c.flushLocked()
	}
}

func groupKey(level, message, caller string, fields map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(0)
	b.WriteString(message)
	b.WriteByte(0)
	b.WriteString(caller)
	for _, k := range groupKeys {
		if v, ok := fields[k]; ok {
			fmt.Fprintf(&b, "\x00%s=%v", k, v)
		}
	}
	return b.String()
}

// flushLocked hands the held entries to the sender. Caller holds mu.
func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 {
		return
	}
	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })
	c.entries = make(map[string]*AggregatedLogEntry)

	select {
	case c.queue <- batch:
	default:
		c.dropped.Add(int64(len(batch)))
	}
}

func (c *LogCollector) tick() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.stop:
			c.mu.Lock()
			c.flushLocked()
			c.closed = true
			c.mu.Unlock()
			close(c.queue)
			return
		}
	}
}

func (c *LogCollector) send() {
	defer c.wg.Done()
	for entries := range c.queue {
		batch := LogBatch{FlushedAt: c.now(), Dropped: c.dropped.Swap(0), Entries: entries}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch)
		cancel()
		if err != nil {
			// the logger cannot log its own delivery failures
			fmt.Fprintf(os.Stderr, "log collector: publish %d entries to %s: %v\n", len(entries), c.cfg.Topic, err)
		}
	}
}

// Close flushes what is held, waits for the last publish and stops.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}

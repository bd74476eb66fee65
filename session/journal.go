package session

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Entry is one journal line.
type Entry struct {
	Time    time.Time
	Level   zapcore.Level
	Message string
	Fields  map[string]any
}

// String renders the entry as "<time> <message>".
func (e Entry) String() string {
	return e.Time.UTC().Format(time.RFC3339) + " " + e.Message
}

// Journal records the log lines of the current flow.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Reset drops all entries.
func (j *Journal) Reset() {
	j.mu.Lock()
	j.entries = nil
	j.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Messages returns the recorded messages in order.
func (j *Journal) Messages() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]string, len(j.entries))
	for i, e := range j.entries {
		out[i] = e.Message
	}
	return out
}

func (j *Journal) add(e Entry) {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

// Core returns a zapcore.Core that appends entries at or above level.
func (j *Journal) Core(level zapcore.LevelEnabler) zapcore.Core {
	return &journalCore{LevelEnabler: level, journal: j}
}

type journalCore struct {
	zapcore.LevelEnabler
	journal *Journal
	fields  []zapcore.Field
}

func (c *journalCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &journalCore{LevelEnabler: c.LevelEnabler, journal: c.journal}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (c *journalCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *journalCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	c.journal.add(Entry{
		Time:    ent.Time,
		Level:   ent.Level,
		Message: ent.Message,
		Fields:  enc.Fields,
	})
	return nil
}

func (c *journalCore) Sync() error {
	return nil
}

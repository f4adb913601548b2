// Package kafkatest provides an in-memory partitioned log with consumer
// group offsets, for exercising producers and consumers without a broker.
package kafkatest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Log is an in-memory stand-in for a set of partitioned topics.
//
// Records are partitioned by key with the same murmur2 balancer the real
// writer uses. Readers resume from their group's committed offsets, so
// opening a new reader after a simulated crash redelivers every record
// that was fetched but not committed.
type Log struct {
	mu         sync.Mutex
	partitions int
	topics     map[string][][]kafka.Message
	commits    map[string]map[string]map[int]int64 // group -> topic -> partition -> next offset
	writeErrs  []error
	notify     chan struct{}
}

// NewLog creates a log whose topics all have the given partition count.
func NewLog(partitions int) *Log {
	if partitions < 1 {
		partitions = 1
	}
	return &Log{
		partitions: partitions,
		topics:     make(map[string][][]kafka.Message),
		commits:    make(map[string]map[string]map[int]int64),
		notify:     make(chan struct{}),
	}
}

// FailNextWrites makes the next len(errs) writes return the given errors
// in order without appending.
func (l *Log) FailNextWrites(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErrs = append(l.writeErrs, errs...)
}

// Append stores msg on msg.Topic and returns it with partition, offset and
// time assigned.
func (l *Log) Append(msg kafka.Message) kafka.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(msg)
}

func (l *Log) appendLocked(msg kafka.Message) kafka.Message {
	parts := l.topicLocked(msg.Topic)

	partition := 0
	if len(msg.Key) > 0 {
		ids := make([]int, l.partitions)
		for i := range ids {
			ids[i] = i
		}
		partition = kafka.Murmur2Balancer{}.Balance(msg, ids...)
	}

	msg.Partition = partition
	msg.Offset = int64(len(parts[partition]))
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	parts[partition] = append(parts[partition], msg)

	close(l.notify)
	l.notify = make(chan struct{})
	return msg
}

func (l *Log) topicLocked(topic string) [][]kafka.Message {
	parts, ok := l.topics[topic]
	if !ok {
		parts = make([][]kafka.Message, l.partitions)
		l.topics[topic] = parts
	}
	return parts
}

// Messages returns every record on topic ordered by partition, then offset.
func (l *Log) Messages(topic string) []kafka.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []kafka.Message
	for _, part := range l.topics[topic] {
		out = append(out, part...)
	}
	return out
}

// Partition returns the records of one partition in offset order.
func (l *Log) Partition(topic string, partition int) []kafka.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	parts := l.topics[topic]
	if partition < 0 || partition >= len(parts) {
		return nil
	}
	return append([]kafka.Message(nil), parts[partition]...)
}

// Committed returns the next offset group will read on a partition.
func (l *Log) Committed(group, topic string, partition int) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commits[group][topic][partition]
}

// Writer returns a producer appending to this log.
func (l *Log) Writer() *Writer {
	return &Writer{log: l}
}

// Reader returns a consumer for topic in group, positioned at the group's
// committed offsets.
func (l *Log) Reader(topic, group string) *Reader {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make(map[int]int64, l.partitions)
	for p := 0; p < l.partitions; p++ {
		positions[p] = l.commits[group][topic][p]
	}
	return &Reader{log: l, topic: topic, group: group, positions: positions}
}

// Writer appends records to a Log.
type Writer struct {
	log *Log
}

// WriteMessage appends msg, or fails with the next injected error.
func (w *Writer) WriteMessage(ctx context.Context, msg kafka.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Topic == "" {
		return errors.New("kafkatest: message has no topic")
	}

	l := w.log
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.writeErrs) > 0 {
		err := l.writeErrs[0]
		l.writeErrs = l.writeErrs[1:]
		return err
	}
	l.appendLocked(msg)
	return nil
}

// Close is a no-op.
func (w *Writer) Close() error { return nil }

// Reader consumes one topic for one consumer group.
type Reader struct {
	log       *Log
	topic     string
	group     string
	positions map[int]int64
	next      int
	closed    bool
}

// FetchMessage returns the next unread record, rotating across partitions,
// and blocks until one is available.
func (r *Reader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	l := r.log
	for {
		l.mu.Lock()
		if r.closed {
			l.mu.Unlock()
			return kafka.Message{}, io.EOF
		}

		parts := l.topicLocked(r.topic)
		for i := 0; i < l.partitions; i++ {
			p := (r.next + i) % l.partitions
			if pos := r.positions[p]; pos < int64(len(parts[p])) {
				r.positions[p] = pos + 1
				r.next = (p + 1) % l.partitions
				msg := parts[p][pos]
				l.mu.Unlock()
				return msg, nil
			}
		}
		wait := l.notify
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-wait:
		}
	}
}

// CommitMessages advances the group's committed offsets past msgs.
func (r *Reader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	l := r.log
	l.mu.Lock()
	defer l.mu.Unlock()

	topics, ok := l.commits[r.group]
	if !ok {
		topics = make(map[string]map[int]int64)
		l.commits[r.group] = topics
	}
	offsets, ok := topics[r.topic]
	if !ok {
		offsets = make(map[int]int64)
		topics[r.topic] = offsets
	}
	for _, msg := range msgs {
		if next := msg.Offset + 1; next > offsets[msg.Partition] {
			offsets[msg.Partition] = next
		}
	}
	return nil
}

// Close makes pending and future fetches return io.EOF.
func (r *Reader) Close() error {
	l := r.log
	l.mu.Lock()
	defer l.mu.Unlock()

	r.closed = true
	close(l.notify)
	l.notify = make(chan struct{})
	return nil
}

// Keys returns the record keys of msgs in order.
func Keys(msgs []kafka.Message) []string {
	keys := make([]string, len(msgs))
	for i, m := range msgs {
		keys[i] = string(m.Key)
	}
	return keys
}

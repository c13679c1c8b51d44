package state

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"trustflow/core/types"
)

var (
	eventSequenceKey = []byte("events/next-sequence")
	eventLogPrefix   = []byte("e/")
)

// EventAttribute is a single key/value pair of a logged event.
type EventAttribute struct {
	Key   string
	Value string
}

// EventRecord is an event as persisted in the append-only log.
type EventRecord struct {
	Sequence   uint64
	TxHash     [32]byte
	Timestamp  uint64
	Type       string
	Attributes []EventAttribute
}

// Event converts the record back into its payload form.
func (r *EventRecord) Event() *types.Event {
	if r == nil {
		return nil
	}
	attrs := make(map[string]string, len(r.Attributes))
	for _, attr := range r.Attributes {
		attrs[attr.Key] = attr.Value
	}
	return &types.Event{Type: r.Type, Attributes: attrs}
}

// Attribute returns the value of key, or "" when absent.
func (r *EventRecord) Attribute(key string) string {
	for _, attr := range r.Attributes {
		if attr.Key == key {
			return attr.Value
		}
	}
	return ""
}

// eventLogKey keeps records in sequence order under a raw prefix so they can
// be scanned directly from the database.
func eventLogKey(seq uint64) []byte {
	buf := make([]byte, len(eventLogPrefix)+8)
	copy(buf, eventLogPrefix)
	binary.BigEndian.PutUint64(buf[len(eventLogPrefix):], seq)
	return buf
}

// NextEventSequence returns the sequence the next logged event receives.
func (m *Manager) NextEventSequence() (uint64, error) {
	var next uint64
	if _, err := m.KVGet(eventSequenceKey, &next); err != nil {
		return 0, err
	}
	return next, nil
}

// AppendEvents logs the payloads produced by one transaction and returns the
// stored records. Attribute order is canonical so identical events encode
// identically.
func (m *Manager) AppendEvents(txHash [32]byte, timestamp uint64, payloads []*types.Event) ([]*EventRecord, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	next, err := m.NextEventSequence()
	if err != nil {
		return nil, err
	}
	records := make([]*EventRecord, 0, len(payloads))
	for _, payload := range payloads {
		if payload == nil {
			continue
		}
		record := &EventRecord{
			Sequence:   next,
			TxHash:     txHash,
			Timestamp:  timestamp,
			Type:       payload.Type,
			Attributes: sortedAttributes(payload.Attributes),
		}
		encoded, err := rlp.EncodeToBytes(record)
		if err != nil {
			return nil, fmt.Errorf("encode event %d: %w", next, err)
		}
		m.put(eventLogKey(next), encoded)
		records = append(records, record)
		next++
	}
	if err := m.KVPut(eventSequenceKey, next); err != nil {
		return nil, err
	}
	return records, nil
}

// EventsFrom returns up to limit records with sequence >= cursor, filtered
// by type when eventType is non-empty. A zero limit means no limit.
func (m *Manager) EventsFrom(cursor uint64, limit int, eventType string) ([]*EventRecord, error) {
	next, err := m.NextEventSequence()
	if err != nil {
		return nil, err
	}
	out := make([]*EventRecord, 0)
	for seq := cursor; seq < next; seq++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		data, err := m.get(eventLogKey(seq))
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("event log gap at sequence %d", seq)
		}
		var record EventRecord
		if err := rlp.DecodeBytes(data, &record); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", seq, err)
		}
		if eventType != "" && record.Type != eventType {
			continue
		}
		out = append(out, &record)
	}
	return out, nil
}

func sortedAttributes(attrs map[string]string) []EventAttribute {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]EventAttribute, 0, len(keys))
	for _, k := range keys {
		out = append(out, EventAttribute{Key: k, Value: attrs[k]})
	}
	return out
}

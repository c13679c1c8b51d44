package core

import (
	"context"
	"fmt"
	"sync"

	"trustflow/core/state"
)

const (
	eventStreamBuffer = 64
	eventBacklogLimit = 4096
)

// SubscribeEvents registers a subscriber for events with sequence >= cursor.
// It returns the persisted backlog followed by a channel of live events and
// a cancel func. Registration happens inside the commit lock, so the backlog
// and the live feed neither overlap nor leave a gap. A subscriber that falls
// behind by more than the channel buffer misses live events and must re-read
// from the log using the last sequence it saw.
func (n *Node) SubscribeEvents(ctx context.Context, cursor uint64) (<-chan *state.EventRecord, func(), []*state.EventRecord, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan *state.EventRecord, eventStreamBuffer)

	n.mu.Lock()
	backlog, err := n.Events(cursor, eventBacklogLimit, "")
	if err != nil {
		n.mu.Unlock()
		return nil, nil, nil, err
	}
	n.streamMu.Lock()
	id := n.streamNextID
	n.streamNextID++
	n.streamSubs[id] = updates
	n.streamMu.Unlock()
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.streamMu.Lock()
			sub, ok := n.streamSubs[id]
			if ok {
				delete(n.streamSubs, id)
				close(sub)
			}
			n.streamMu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog, nil
}

// publishEvents runs with n.mu held, after the records are committed.
func (n *Node) publishEvents(records []*state.EventRecord) {
	if len(records) == 0 {
		return
	}
	n.streamMu.Lock()
	defer n.streamMu.Unlock()
	for _, record := range records {
		for _, ch := range n.streamSubs {
			select {
			case ch <- record:
			default:
			}
		}
	}
}

package memory

import (
	"context"
	"sync"

	"github.com/convomesh/convocore/pkg/streamcore"
)

type entry struct {
	groupKey string
	message  streamcore.Message
}

type subscriber struct {
	ch     chan streamcore.Result[streamcore.Message]
	groups map[string]bool
}

// FanIn is an in-memory streamcore.MessageFanIn. Every appended message is
// recorded in a single ordered backlog. A subscriber replays the full
// backlog of every group in its snapshot, whether that group's cursor is 0
// or 1 (there is no separately recorded position to resume from, so the
// backlog is the group's whole history since creation), and then receives
// messages appended after it subscribed.
type FanIn struct {
	mu      sync.Mutex
	entries []entry
	subs    []*subscriber
}

// NewFanIn returns an empty FanIn.
func NewFanIn() *FanIn {
	return &FanIn{}
}

// Append records a new message for groupID and forwards it to every live
// subscriber whose snapshot includes that group. A subscriber whose buffer
// is full has the message dropped for it, mirroring a real lossy transport
// under backpressure.
func (f *FanIn) Append(groupID []byte, msg streamcore.Message) {
	key := streamcore.GroupIDKey(groupID)

	f.mu.Lock()
	f.entries = append(f.entries, entry{groupKey: key, message: msg})
	subs := append([]*subscriber(nil), f.subs...)
	f.mu.Unlock()

	for _, sub := range subs {
		if !sub.groups[key] {
			continue
		}
		select {
		case sub.ch <- streamcore.Ok(msg):
		default:
		}
	}
}

func (f *FanIn) Open(ctx context.Context, snapshot map[string]streamcore.MessagesStreamInfo) (<-chan streamcore.Result[streamcore.Message], error) {
	groups := make(map[string]bool, len(snapshot))
	for key := range snapshot {
		groups[key] = true
	}

	sub := &subscriber{ch: make(chan streamcore.Result[streamcore.Message], 256), groups: groups}

	f.mu.Lock()
	backlog := append([]entry(nil), f.entries...)
	f.subs = append(f.subs, sub)
	f.mu.Unlock()

	out := make(chan streamcore.Result[streamcore.Message])
	go func() {
		defer close(out)
		defer f.removeSub(sub)

		for _, e := range backlog {
			if _, ok := snapshot[e.groupKey]; !ok {
				continue
			}
			select {
			case out <- streamcore.Ok(e.message):
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-sub.ch:
				if !ok {
					return
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (f *FanIn) removeSub(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s == sub {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}

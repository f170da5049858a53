package memory

import (
	"context"

	"github.com/convomesh/convocore/pkg/streamcore"
)

// Transport is an in-memory streamcore.WelcomeTransport: a single shared
// feed that test code pushes envelopes onto.
type Transport struct {
	ch chan streamcore.WelcomeEnvelope
}

// NewTransport returns a Transport with a reasonably sized internal buffer.
func NewTransport() *Transport {
	return &Transport{ch: make(chan streamcore.WelcomeEnvelope, 64)}
}

// SubscribeWelcomeMessages wraps the pushed envelopes as Ok results; this
// in-memory double never fails to decode one (there is no wire format to
// decode), so it never yields an Err.
func (t *Transport) SubscribeWelcomeMessages(ctx context.Context) (<-chan streamcore.Result[streamcore.WelcomeEnvelope], error) {
	out := make(chan streamcore.Result[streamcore.WelcomeEnvelope])
	go func() {
		defer close(out)
		for {
			select {
			case w, ok := <-t.ch:
				if !ok {
					return
				}
				select {
				case out <- streamcore.Ok(w):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Push delivers w on the feed, blocking if the buffer is full.
func (t *Transport) Push(w streamcore.WelcomeEnvelope) {
	t.ch <- w
}

// Close ends the feed; subsequent reads observe a closed channel.
func (t *Transport) Close() {
	close(t.ch)
}

package streamcore

import "context"

// MessageFanIn is the remote message multiplexer: the transport-level
// collaborator that knows how to open one subscription per conversation and
// merge their messages into a single ordered stream.
//
// It is keyed by a snapshot of known groups (GroupIDKey(groupID) ->
// MessagesStreamInfo), not by a live, mutable group list: once Open is
// called with a snapshot, that snapshot's group membership and cursors are
// fixed for the lifetime of the returned channel. StreamAllMessages is
// responsible for noticing newly created groups and opening a replacement
// fan-in with an updated snapshot; MessageFanIn itself never does this on
// its own.
type MessageFanIn interface {
	// Open begins delivering messages for every group in snapshot, resuming
	// each group after its recorded Cursor. The returned channel closes
	// when ctx is done; it is never closed for any other reason.
	Open(ctx context.Context, snapshot map[string]MessagesStreamInfo) (<-chan Result[Message], error)
}

// Package streamcore implements the subscription and streaming core for an
// end-to-end encrypted messaging client built on a group-messaging protocol.
//
// It multiplexes three asynchronous sources:
//   - a remote "welcome" feed announcing new conversation invitations,
//   - per-conversation remote message feeds, and
//   - a process-local event bus carrying locally-initiated conversation
//     creation, sync-message signals, and preference/consent updates,
//
// into consumer-facing streams: new conversations, all messages across all
// conversations, consent updates, and preference updates.
//
// The MLS cryptographic engine, the persistent store, the remote transport,
// and identity verification are external collaborators, reached only through
// the interfaces in welcome.go, conversations.go, fanin.go, and client.go.
package streamcore

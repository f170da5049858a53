package streamcore

// ConversationType classifies a Conversation. Stream and query filters take
// a *ConversationType: a nil filter matches every type, while a filter
// pointing at Unspecified matches only conversations whose type is
// Unspecified.
type ConversationType int

const (
	Unspecified ConversationType = iota
	Group
	Dm
	Sync
)

func (t ConversationType) String() string {
	switch t {
	case Group:
		return "group"
	case Dm:
		return "dm"
	case Sync:
		return "sync"
	default:
		return "unspecified"
	}
}

// Conversation is a materialized local conversation record. GroupID is the
// opaque identity used throughout the core (as a map key it is converted
// to a string via GroupIDKey).
type Conversation struct {
	GroupID          []byte
	CreatedAtNS      int64
	ConversationType ConversationType
}

// GroupIDKey returns the map-key form of a group id.
func GroupIDKey(groupID []byte) string {
	return string(groupID)
}

// WelcomeEnvelope is the transport-layer payload for a single invitation.
// ID is a monotonically increasing, server-assigned dedup key.
type WelcomeEnvelope struct {
	ID            int64
	HPKEPublicKey []byte
	Data          []byte
}

// Message is a decrypted message belonging to a single conversation.
type Message struct {
	GroupID               []byte
	DecryptedMessageBytes []byte
	SenderInboxID         string
	Cursor                uint64
	CreatedAtNS           int64
}

// MessagesStreamInfo is the per-group snapshot value threaded through the
// message fan-in. Cursor 0 means "replay from storage's recorded position";
// cursor 1 (only ever assigned to a newly discovered group) means "replay
// from the group's creation". Once a fan-in is constructed from a snapshot,
// the snapshot's cursors are immutable for the lifetime of that fan-in.
type MessagesStreamInfo struct {
	ConvoCreatedAtNS int64
	Cursor           uint64
}

// StoredGroup is the durable record for a conversation, as returned by the
// Storage collaborator.
type StoredGroup struct {
	GroupID          []byte
	WelcomeID        *int64
	CreatedAtNS      int64
	ConversationType ConversationType
}

// GroupQueryArgs filters a Storage.FindGroups call.
type GroupQueryArgs struct {
	ConversationType *ConversationType
}

// WithConversationType returns a copy of q with ConversationType set, or q
// unchanged if ct is nil.
func (q GroupQueryArgs) WithConversationType(ct *ConversationType) GroupQueryArgs {
	if ct != nil {
		q.ConversationType = ct
	}
	return q
}

// StoredConsentRecord is a single consent decision, as persisted by Storage.
type StoredConsentRecord struct {
	EntityType string
	Entity     string
	State      string
}

// UserPreferenceUpdate is the sum type of device-sync preference changes
// carried over the local event bus. Exactly one of Consent, Nickname, or
// HMACKey is non-nil; IsConsent reports whether this update belongs to the
// consent filter's partition.
type UserPreferenceUpdate struct {
	Consent  *StoredConsentRecord
	Nickname *NicknameUpdate
	HMACKey  *HMACKeyUpdate
}

// IsConsent reports whether this update is a consent change; the consent and
// preference filters are a total partition over this flag.
func (u UserPreferenceUpdate) IsConsent() bool {
	return u.Consent != nil
}

// NicknameUpdate records a changed display nickname for an entity.
type NicknameUpdate struct {
	Entity   string
	Nickname string
}

// HMACKeyUpdate records a rotated HMAC key for a conversation, used to
// authenticate push notification payloads for that conversation.
type HMACKeyUpdate struct {
	GroupID []byte
	Key     []byte
}

// SyncKind distinguishes the two SyncMessage shapes.
type SyncKind int

const (
	SyncRequest SyncKind = iota
	SyncReply
)

// SyncMessage is the payload of a LocalEvent carrying a device-sync signal.
type SyncMessage struct {
	Kind      SyncKind
	MessageID []byte
}

// LocalEventKind tags the payload carried by a LocalEvent.
type LocalEventKind int

const (
	EventNewGroup LocalEventKind = iota
	EventSyncMessage
	EventOutgoingPreferenceUpdates
	EventIncomingPreferenceUpdate
)

// LocalEvent is a single item published on the local event bus. Exactly one
// payload field is populated, matching Kind.
type LocalEvent struct {
	Kind              LocalEventKind
	NewGroup          *Conversation
	SyncMessage       *SyncMessage
	PreferenceUpdates []UserPreferenceUpdate
}

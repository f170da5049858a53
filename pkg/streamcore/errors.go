package streamcore

import (
	apperrors "github.com/convomesh/convocore/pkg/errors"
)

// ErrorKind is the wire-visible error taxonomy callers switch on.
type ErrorKind string

const (
	ErrFailedToStartNewMessagesStream ErrorKind = "FAILED_TO_START_NEW_MESSAGES_STREAM"
	ErrClient                         ErrorKind = "CLIENT"
	ErrGroup                          ErrorKind = "GROUP"
	ErrGroupMessageNotFound           ErrorKind = "GROUP_MESSAGE_NOT_FOUND"
	ErrReceiveGroup                   ErrorKind = "RECEIVE_GROUP"
	ErrDatabase                       ErrorKind = "DATABASE"
	ErrStorage                        ErrorKind = "STORAGE"
	ErrAPI                            ErrorKind = "API"
	ErrDecode                         ErrorKind = "DECODE"
)

// SubscribeError is the error type yielded by every per-item stream result
// in this package. It classifies the failure so callers can decide whether
// to retry. The retry wrapper in welcome.go does not consult this
// classification; it retries whatever its RetryConfig.RetryIf accepts.
type SubscribeError struct {
	Kind  ErrorKind
	Cause error
}

func newSubscribeError(kind ErrorKind, msg string, cause error) *SubscribeError {
	return &SubscribeError{Kind: kind, Cause: apperrors.New(apperrors.CodeInternal, msg, cause)}
}

func (e *SubscribeError) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *SubscribeError) Unwrap() error {
	return e.Cause
}

// Retryable classifies the error per spec: decode failures are terminal for
// the item that produced them; everything else (transport, storage, MLS
// processing, group resolution, the GroupMessageNotFound visibility race,
// API calls) is retryable.
func (e *SubscribeError) Retryable() bool {
	return e.Kind != ErrDecode
}

func wrapClient(err error) *SubscribeError {
	return &SubscribeError{Kind: ErrClient, Cause: err}
}

func wrapGroup(err error) *SubscribeError {
	return &SubscribeError{Kind: ErrGroup, Cause: err}
}

func wrapStorage(err error) *SubscribeError {
	return &SubscribeError{Kind: ErrStorage, Cause: err}
}

func wrapAPI(err error) *SubscribeError {
	return &SubscribeError{Kind: ErrAPI, Cause: err}
}

func wrapDecode(err error) *SubscribeError {
	return &SubscribeError{Kind: ErrDecode, Cause: err}
}

func errFailedToStartNewMessagesStream(err error) *SubscribeError {
	return &SubscribeError{Kind: ErrFailedToStartNewMessagesStream, Cause: err}
}

// NewDecodeError builds a terminal-for-the-item SubscribeError classified
// as ErrDecode. It is exported for WelcomeTransport implementations, which
// live outside this package, to surface a wire-decode failure as a
// per-item Result rather than dropping the item silently.
func NewDecodeError(err error) *SubscribeError {
	return wrapDecode(err)
}

var errGroupMessageNotFound = &SubscribeError{Kind: ErrGroupMessageNotFound}

// Result is a generic per-item outcome used throughout the streaming core:
// every stream yields Result[T] rather than terminating on the first item
// error, per spec.md §7 ("errors inside a stream are yielded as per-item Err
// values; the stream itself continues").
type Result[T any] struct {
	Value T
	Err   *SubscribeError
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Err[T any](err *SubscribeError) Result[T] {
	return Result[T]{Err: err}
}

package errs

const (
	ServerInternalError = 500
	ArgsError           = 1001
	RecordNotFoundError = 1004
	UnauthenticatedErr  = 1101
	TokenInvalidError   = 1102

	SessionNotFoundError   = 1201
	SessionBoundError      = 1202
	TooManySessionsError   = 1203
	NotParticipantError    = 1204
	ServiceUnavailableCode = 1301
)

var (
	ErrInternal        = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs            = NewCodeError(ArgsError, "ArgsError")
	ErrRecordNotFound  = NewCodeError(RecordNotFoundError, "RecordNotFoundError")
	ErrUnauthenticated = NewCodeError(UnauthenticatedErr, "Unauthenticated")
	ErrTokenInvalid    = NewCodeError(TokenInvalidError, "TokenInvalid")

	ErrSessionNotFound = NewCodeError(SessionNotFoundError, "SessionNotFound")
	ErrSessionBound    = NewCodeError(SessionBoundError, "SessionBoundToOtherUser")
	ErrTooManySessions = NewCodeError(TooManySessionsError, "TooManySessions")
	ErrNotParticipant  = NewCodeError(NotParticipantError, "NotParticipant")
	ErrUnavailable     = NewCodeError(ServiceUnavailableCode, "ServiceUnavailable")
)

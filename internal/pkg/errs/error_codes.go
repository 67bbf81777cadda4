/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system failures both inside the server
and in the JSON envelope returned to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Message and Media Errors
const (
	// ErrMessageEmpty indicates a message with neither text nor media.
	ErrMessageEmpty = 2201

	// ErrMessageContentTooLong indicates that the message text exceeded the maximum length limit.
	ErrMessageContentTooLong = 2202

	// ErrMediaInvalid indicates an unknown media type, a foreign media key or a MIME mismatch.
	ErrMediaInvalid = 2203

	// ErrFileSizeTooLarge indicates that an upload request exceeded the media size limit.
	ErrFileSizeTooLarge = 2204

	// ErrMediaUnavailable indicates that no media host is configured on this server.
	ErrMediaUnavailable = 2205

	// ErrRecipientRequired indicates a send request without a recipient.
	ErrRecipientRequired = 2206
)

// 3xxx: Identity Errors
const (
	// ErrUnauthorized indicates the request carries no valid identity.
	ErrUnauthorized = 3001

	// ErrUserNotFound indicates that a referenced user does not exist.
	ErrUserNotFound = 3002
)

// 4xxx: Relationship Errors
const (
	// ErrSelfTarget indicates a follow or connection operation aimed at the caller.
	ErrSelfTarget = 4001

	// ErrAlreadyRequested indicates a pending connection request already exists for the pair.
	ErrAlreadyRequested = 4101

	// ErrAlreadyConnected indicates the pair is already connected.
	ErrAlreadyConnected = 4102

	// ErrAlreadyFollowing indicates the follow edge already exists.
	ErrAlreadyFollowing = 4103

	// ErrNotFollowing indicates there is nothing to unfollow or disconnect.
	ErrNotFollowing = 4104

	// ErrRequestNotFound indicates no pending request matches the accept or decline call.
	ErrRequestNotFound = 4201

	// ErrRequestLimitExceeded indicates the daily connection request cap was reached.
	ErrRequestLimitExceeded = 4301
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreUnavailable indicates the persistence layer failed; the caller should retry.
	ErrStoreUnavailable = 5001

	// ErrFileStorageFailed indicates the media host rejected or failed an operation.
	ErrFileStorageFailed = 5002
)

/*
Package errs provides custom error types and application-level error code constants.

This file maps every error code to its CustomError template: user message, HTTP status and kind.
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Kind: KindValidation},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Kind: KindValidation},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Kind: KindValidation},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Kind: KindValidation},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Kind: KindValidation},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Kind: KindRateLimited},

	// 2xxx: Message and Media Errors
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message needs text or media.", Kind: KindValidation},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long.", Kind: KindValidation},
	ErrMediaInvalid:          {Code: ErrMediaInvalid, Message: "Invalid media attachment.", Kind: KindValidation},
	ErrFileSizeTooLarge:      {Code: ErrFileSizeTooLarge, Message: "File is too large.", Kind: KindValidation},
	ErrMediaUnavailable:      {Code: ErrMediaUnavailable, Message: "Media uploads are disabled on this server.", Kind: KindValidation},
	ErrRecipientRequired:     {Code: ErrRecipientRequired, Message: "Recipient is required.", Kind: KindValidation},

	// 3xxx: Identity Errors
	ErrUnauthorized: {Code: ErrUnauthorized, Message: "Please sign in to continue.", Kind: KindUnauthorized},
	ErrUserNotFound: {Code: ErrUserNotFound, Message: "User not found.", Kind: KindNotFound},

	// 4xxx: Relationship Errors
	ErrSelfTarget:           {Code: ErrSelfTarget, Message: "You cannot do that with yourself.", Kind: KindValidation},
	ErrAlreadyRequested:     {Code: ErrAlreadyRequested, Message: "Connection request already sent.", Kind: KindConflict},
	ErrAlreadyConnected:     {Code: ErrAlreadyConnected, Message: "You are already connected with this user.", Kind: KindConflict},
	ErrAlreadyFollowing:     {Code: ErrAlreadyFollowing, Message: "You are already following this user.", Kind: KindConflict},
	ErrNotFollowing:         {Code: ErrNotFollowing, Message: "You are not following or connected with this user.", Kind: KindConflict},
	ErrRequestNotFound:      {Code: ErrRequestNotFound, Message: "Pending connection request not found.", Kind: KindNotFound},
	ErrRequestLimitExceeded: {Code: ErrRequestLimitExceeded, Message: "You have sent more than %d connection requests in the last 24 hours.", Kind: KindRateLimited},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Kind: KindInternal},
	ErrStoreUnavailable:  {Code: ErrStoreUnavailable, Message: "Service temporarily unavailable. Please retry.", Kind: KindTransient},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File storage failed. Please try again.", Kind: KindTransient},
}

// kindStatus is the HTTP status used when a template does not set one explicitly.
var kindStatus = map[Kind]int{
	KindValidation:   http.StatusBadRequest,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindRateLimited:  http.StatusTooManyRequests,
	KindUnauthorized: http.StatusUnauthorized,
	KindTransient:    http.StatusServiceUnavailable,
	KindInternal:     http.StatusInternalServerError,
}

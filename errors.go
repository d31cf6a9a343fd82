package authcore

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeAccountLocked        = "ACCOUNT_LOCKED"
	TextCodeAccountInactive      = "ACCOUNT_INACTIVE"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
	TextCodeTokenBadSignature    = "TOKEN_SIGNATURE_INVALID"
	TextCodeTokenWrongClass      = "TOKEN_WRONG_CLASS"
	TextCodeAccessDenied         = "ACCESS_DENIED"
	TextCodeDuplicateUsername    = "DUPLICATE_USERNAME"
	TextCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	TextCodeWeakPassword         = "WEAK_PASSWORD"
	TextCodeWrongCurrentPassword = "WRONG_CURRENT_PASSWORD"
)

// ErrInvalidCredentials is returned for both unknown usernames and wrong
// passwords: the external message never distinguishes the two.
var ErrInvalidCredentials = goerrors.New("invalid username or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountLocked is returned while the lockout window is active.
var ErrAccountLocked = goerrors.New("account temporarily locked", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountInactive is returned for deactivated accounts.
var ErrAccountInactive = goerrors.New("account is not active", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned for tokens past their expiry.
var ErrTokenExpired = goerrors.New("authentication token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that fail to decode.
var ErrTokenMalformed = goerrors.New("authentication token malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenBadSignature is returned when the MAC does not verify.
var ErrTokenBadSignature = goerrors.New("authentication token signature mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenBadSignature).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenWrongClass is returned when a token of the wrong class is
// presented, e.g. a refresh token where an access token is required.
var ErrTokenWrongClass = goerrors.New("token class not valid for this operation", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenWrongClass).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccessDenied is the generic authorization denial.
var ErrAccessDenied = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccessDenied).
	WithCode(goerrors.CodeForbidden)

var ErrDuplicateUsername = goerrors.New("username already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateUsername).
	WithCode(goerrors.CodeConflict)

var ErrDuplicateEmail = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

var ErrWrongCurrentPassword = goerrors.New("current password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongCurrentPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the internal bcrypt mismatch signal;
// it never reaches callers directly.
var ErrMismatchedHashAndPassword = goerrors.New("hash and password mismatch", goerrors.CategoryAuth).
	WithTextCode("HASH_MISMATCH")

// ErrNoEmptyString rejects empty password input to the hasher.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// NewLockedError wraps ErrAccountLocked with the remaining lock duration.
func NewLockedError(remaining time.Duration) error {
	return goerrors.Wrap(ErrAccountLocked, goerrors.CategoryRateLimit, "account temporarily locked").
		WithTextCode(TextCodeAccountLocked).
		WithMetadata(map[string]any{
			"retry_in_seconds": int(remaining.Seconds() + 0.5),
		})
}

// LockedRemaining extracts the remaining lock duration from a lockout
// error, if err carries one.
func LockedRemaining(err error) (time.Duration, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return 0, false
	}

	if richErr.TextCode != TextCodeAccountLocked {
		return 0, false
	}

	secs, ok := richErr.Metadata["retry_in_seconds"].(int)
	if !ok {
		return 0, false
	}

	return time.Duration(secs) * time.Second, true
}

// TextCode returns the rich error text code, or "" for plain errors.
func TextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

package authcore

import (
	"errors"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the minimum accepted password length
const MinPasswordLength = 8

// DefaultBcryptCost keeps verification around tens of milliseconds on
// commodity hardware; the cost deliberately trades throughput for
// resistance to offline guessing.
const DefaultBcryptCost = 12

// BcryptHasher hashes and verifies passwords using bcrypt with a
// configurable work factor.
type BcryptHasher struct {
	cost int
}

var _ PasswordAuthenticator = (*BcryptHasher)(nil)

// NewBcryptHasher returns a hasher with the given cost. Costs outside
// bcrypt's supported range fall back to DefaultBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// HashPassword will generate a salted password hash
func (h *BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(out), err
}

// ComparePasswordAndHash will validate the given cleartext password
// matches the hashed password. Comparison time does not depend on which
// characters differ.
func (h *BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// ValidateStrength rejects candidates shorter than MinPasswordLength or
// missing a character class. Every missing class is reported as its own
// reason so callers can surface all of them at once.
func ValidateStrength(candidate string) error {
	errs := validation.Errors{}

	if len(candidate) < MinPasswordLength {
		errs["length"] = errors.New("must be at least 8 characters")
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	if !hasUpper {
		errs["uppercase"] = errors.New("must contain an uppercase letter")
	}
	if !hasLower {
		errs["lowercase"] = errors.New("must contain a lowercase letter")
	}
	if !hasDigit {
		errs["digit"] = errors.New("must contain a digit")
	}
	if !hasSymbol {
		errs["symbol"] = errors.New("must contain a symbol")
	}

	if err := errs.Filter(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "password does not meet strength requirements").
			WithTextCode(TextCodeWeakPassword).
			WithCode(goerrors.CodeBadRequest)
	}

	return nil
}

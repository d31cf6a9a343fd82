package authcore

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenPair bundles the two tokens issued by a successful authentication.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenService mints and verifies the two token classes. Minting and
// verification are pure and safely parallel: the only shared state is
// the immutable signing key.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     Logger
}

// NewTokenService creates a new TokenService. A missing signing key is
// fatal at construction: the process cannot mint or verify without it.
func NewTokenService(cfg Config, logger Logger) (*TokenService, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("token signing key is required", errors.CategoryInternal)
	}

	if cfg.AccessTokenTTL >= cfg.RefreshTokenTTL {
		return nil, errors.New("access token TTL must be shorter than refresh token TTL", errors.CategoryBadInput)
	}

	if logger == nil {
		logger = defLogger{}
	}

	var aud jwt.ClaimStrings
	if len(cfg.Audience) > 0 {
		aud = make(jwt.ClaimStrings, len(cfg.Audience))
		copy(aud, cfg.Audience)
	}

	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   aud,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		logger:     logger,
	}, nil
}

// Mint creates a signed token of the given class for the identity. The
// expiry is deterministic by class.
func (ts *TokenService) Mint(identity Identity, class TokenClass) (string, time.Time, error) {
	if !class.IsValid() {
		return "", time.Time{}, errors.New("unknown token class", errors.CategoryBadInput)
	}

	now := time.Now()

	ttl := ts.accessTTL
	if class == TokenClassRefresh {
		ttl = ts.refreshTTL
	}

	expiresAt := now.Add(ttl)

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:        identity.ID(),
		UserRole:   identity.Role(),
		TokenClass: class,
	}

	ensureTokenID(&claims.RegisteredClaims)

	signed, err := ts.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// IssuePair mints an access and a refresh token at the same instant.
func (ts *TokenService) IssuePair(identity Identity) (*TokenPair, error) {
	access, accessExp, err := ts.Mint(identity, TokenClassAccess)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := ts.Mint(identity, TokenClassRefresh)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenService) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and verifies a token string and checks it carries the
// expected class. Failure reasons are distinct: malformed encoding,
// signature mismatch, expired, or wrong class.
func (ts *TokenService) Validate(tokenString string, expected TokenClass) (*JWTClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenBadSignature
		default:
			return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
				WithTextCode(ErrTokenMalformed.TextCode)
		}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService validate could not decode or validate claims")
		return nil, ErrTokenMalformed
	}

	if claims.TokenClass != expected {
		return nil, ErrTokenWrongClass
	}

	return claims, nil
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/silvercoin/advisor/backend/internal/model/account"
)

// DefaultTokenTTL is used when KeyConfig.TTL is zero.
const DefaultTokenTTL = 30 * time.Minute

// KeyConfig holds the trust key shared by the Issuer and the Verifier.
type KeyConfig struct {
	Secret    string
	Algorithm string
	TTL       time.Duration
}

func (c KeyConfig) signingMethod() (jwt.SigningMethod, error) {
	if strings.TrimSpace(c.Secret) == "" {
		return nil, errors.New("signing secret not configured")
	}
	alg := strings.ToUpper(strings.TrimSpace(c.Algorithm))
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", c.Algorithm)
	}
	return method, nil
}

// Caller is the identity attached to a verified credential.
type Caller struct {
	Username string `json:"username"`
	Active   bool   `json:"active"`
}

// Issuer mints signed, time-bounded credentials.
type Issuer struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg KeyConfig) (*Issuer, error) {
	method, err := cfg.signingMethod()
	if err != nil {
		return nil, err
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{secret: []byte(cfg.Secret), method: method, ttl: ttl, now: time.Now}, nil
}

// Issue signs a credential for username. A zero ttl uses the configured lifetime.
func (i *Issuer) Issue(username string, ttl time.Duration) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, errors.New("username is required")
	}
	if ttl <= 0 {
		ttl = i.ttl
	}
	issuedAt := i.now()
	expiresAt := issuedAt.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verifier checks credentials against the trust key and the account store.
// It has no side effects.
type Verifier struct {
	secret   []byte
	method   jwt.SigningMethod
	accounts account.Store
	now      func() time.Time
}

// NewVerifier validates cfg and returns a Verifier backed by accounts.
func NewVerifier(cfg KeyConfig, accounts account.Store) (*Verifier, error) {
	method, err := cfg.signingMethod()
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		return nil, errors.New("account store is required")
	}
	return &Verifier{secret: []byte(cfg.Secret), method: method, accounts: accounts, now: time.Now}, nil
}

// Verify returns the caller bound to raw or an *Error.
func (v *Verifier) Verify(ctx context.Context, raw string) (Caller, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Caller{}, newError(ReasonMissing, nil)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Caller{}, classifyParseError(err)
	}
	if !token.Valid || claims.Subject == "" {
		return Caller{}, newError(ReasonInvalid, errors.New("token has no subject"))
	}

	acct, err := v.accounts.FindByUsername(ctx, claims.Subject)
	if errors.Is(err, account.ErrNotFound) {
		return Caller{}, newError(ReasonUnknownAccount, err)
	}
	if err != nil {
		return Caller{}, newError(ReasonUnknownAccount, fmt.Errorf("account lookup: %w", err))
	}
	if acct.Disabled {
		return Caller{}, newError(ReasonDisabledAccount, nil)
	}
	return Caller{Username: acct.Username, Active: true}, nil
}

func classifyParseError(err error) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newError(ReasonMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(ReasonExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return newError(ReasonSignature, err)
	default:
		return newError(ReasonInvalid, err)
	}
}

type callerKey struct{}

// WithCaller attaches a verified caller to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller attached by WithCaller.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/silvercoin/advisor/backend/internal/model/account"
)

var errBadCredentials = errors.New("incorrect username or password")

// HashPassword returns a bcrypt hash suitable for account.Account.HashedPassword.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticator exchanges a username and password for a signed credential.
type Authenticator struct {
	accounts account.Store
	issuer   *Issuer
}

// NewAuthenticator wires the account store to the issuer.
func NewAuthenticator(accounts account.Store, issuer *Issuer) *Authenticator {
	return &Authenticator{accounts: accounts, issuer: issuer}
}

// Login checks the password and returns a fresh credential.
// Unknown users and wrong passwords share one error so usernames cannot be probed.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, error) {
	acct, err := a.accounts.FindByUsername(ctx, username)
	if err != nil {
		return "", newError(ReasonInvalid, errBadCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.HashedPassword), []byte(password)); err != nil {
		return "", newError(ReasonInvalid, errBadCredentials)
	}
	if acct.Disabled {
		return "", newError(ReasonDisabledAccount, nil)
	}

	token, _, err := a.issuer.Issue(acct.Username, 0)
	if err != nil {
		return "", err
	}
	return token, nil
}

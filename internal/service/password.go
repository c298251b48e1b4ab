package service

import (
	"sync"

	"golang.org/x/crypto/bcrypt"

	appErrors "github.com/noah-isme/identity-api/pkg/errors"
)

// bcrypt rejects inputs longer than this many bytes; validator tags count runes.
const maxPasswordBytes = 72

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// checkPasswordBytes rejects passwords bcrypt cannot hash as a validation failure.
func checkPasswordBytes(field, password string) error {
	if len(password) <= maxPasswordBytes {
		return nil
	}
	return appErrors.WithDetail(
		appErrors.Clone(appErrors.ErrValidation, "password exceeds 72 bytes"),
		field, "max 72 bytes",
	)
}

// compareDummyHash spends the same bcrypt work as a real comparison so unknown usernames
// cannot be told apart from wrong passwords by response time.
func compareDummyHash(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("identity-timing-equalizer"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

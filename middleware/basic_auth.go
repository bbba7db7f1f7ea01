package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"

	"github.com/mnehpets/rpchost/endpoint"
)

// Realm is announced in Basic authentication challenges.
const Realm = "rpchost"

// Credentials is one user name with its password hash.
//
// PasswordHash is either a bcrypt hash ("$2a$...") or, for configurations
// written by older releases, the lowercase hex SHA-256 of the password.
type Credentials struct {
	UserName     string
	PasswordHash string
}

// CredentialStore holds the current credentials snapshot. Readers never
// block; a change swaps the whole snapshot so a request sees either the old
// or the new pair, never a mix.
//
// A store without credentials accepts every request.
type CredentialStore struct {
	current atomic.Pointer[Credentials]
}

// NewCredentialStore returns a store holding the given credentials. Empty
// values leave authentication disabled.
func NewCredentialStore(userName, passwordHash string) *CredentialStore {
	s := &CredentialStore{}
	s.Set(userName, passwordHash)
	return s
}

// Set replaces the credentials. An empty user name or hash is ignored and
// the previous credentials stay in effect.
func (s *CredentialStore) Set(userName, passwordHash string) {
	if userName == "" || passwordHash == "" {
		return
	}
	s.current.Store(&Credentials{UserName: userName, PasswordHash: passwordHash})
}

// Clear removes the credentials, disabling authentication.
func (s *CredentialStore) Clear() {
	s.current.Store(nil)
}

// Snapshot returns the current credentials, or nil when none are set.
func (s *CredentialStore) Snapshot() *Credentials {
	return s.current.Load()
}

// Enabled reports whether requests must authenticate.
func (s *CredentialStore) Enabled() bool {
	return s.current.Load() != nil
}

// Verify reports whether the pair matches the current credentials. It
// returns true when authentication is disabled.
func (s *CredentialStore) Verify(userName, password string) bool {
	c := s.current.Load()
	if c == nil {
		return true
	}
	userOK := subtle.ConstantTimeCompare([]byte(userName), []byte(c.UserName)) == 1
	passOK := CheckPassword(c.PasswordHash, password)
	return userOK && passOK
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword compares password against a bcrypt or legacy SHA-256 hash.
func CheckPassword(hash, password string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	sum := sha256.Sum256([]byte(password))
	want := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(hash)), []byte(want)) == 1
}

// BasicAuthProcessor rejects requests whose Basic credentials do not match
// the store with 401 and an empty body. The endpoint is not reached.
type BasicAuthProcessor struct {
	Store *CredentialStore
	Realm string
}

// NewBasicAuthProcessor returns a processor checking against store.
func NewBasicAuthProcessor(store *CredentialStore) *BasicAuthProcessor {
	return &BasicAuthProcessor{Store: store, Realm: Realm}
}

// Process implements endpoint.Processor.
func (p *BasicAuthProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if p.Store == nil || !p.Store.Enabled() {
		return next(w, r)
	}
	user, pass, ok := r.BasicAuth()
	if ok && p.Store.Verify(user, pass) {
		return next(w, r)
	}
	realm := p.Realm
	if realm == "" {
		realm = Realm
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	return &endpoint.EndpointError{Status: http.StatusUnauthorized, Empty: true}
}

var _ endpoint.Processor = (*BasicAuthProcessor)(nil)

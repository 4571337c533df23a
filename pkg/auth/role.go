// Package auth implements the console's cookie role gate. There are two
// roles: admins sign in with configured credentials and may manage
// training data; employees enter with one click and may only chat.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
)

// Role is a signed-in visitor's role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// SessionName is the role cookie's name.
const SessionName = "userRole"

const roleKey = "role"

// ErrBadCredentials is returned for a failed admin sign-in.
var ErrBadCredentials = errors.New("invalid username or password")

// Manager signs, reads and clears the role cookie, and checks admin
// credentials.
type Manager struct {
	store         *sessions.CookieStore
	adminUsername string
	adminPassword string
}

// NewManager builds the role gate.
//
// The secret signs the role cookie; it can be any passphrase and is
// SHA-256 hashed to derive the signing key. It must be stable across
// restarts or every visitor is signed out on deploy. maxAgeDays bounds
// how long a role sticks before the visitor must sign in again.
func NewManager(secret, adminUsername, adminPassword string, maxAgeDays int, settings CookieSettings) *Manager {
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   settings.Domain,
		MaxAge:   maxAgeDays * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   settings.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{
		store:         store,
		adminUsername: adminUsername,
		adminPassword: adminPassword,
	}
}

// Authenticate checks admin credentials.
func (m *Manager) Authenticate(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(m.adminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(m.adminPassword)) == 1
	if !userOK || !passOK {
		return ErrBadCredentials
	}
	return nil
}

// SetRole writes the role cookie.
func (m *Manager) SetRole(w http.ResponseWriter, r *http.Request, role Role) error {
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		// A tampered or stale cookie decodes to an error plus a fresh
		// session; the fresh session is still usable.
		session, _ = m.store.New(r, SessionName)
	}
	session.Values[roleKey] = string(role)
	return session.Save(r, w)
}

// Role reads the visitor's role. ok is false when no valid role cookie
// is present.
func (m *Manager) Role(r *http.Request) (Role, bool) {
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		return "", false
	}
	raw, ok := session.Values[roleKey].(string)
	if !ok {
		return "", false
	}
	role := Role(raw)
	if role != RoleAdmin && role != RoleEmployee {
		return "", false
	}
	return role, true
}

// ClearRole expires the role cookie.
func (m *Manager) ClearRole(w http.ResponseWriter, r *http.Request) error {
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		session, _ = m.store.New(r, SessionName)
	}
	session.Options.MaxAge = -1
	delete(session.Values, roleKey)
	return session.Save(r, w)
}

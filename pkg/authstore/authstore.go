// Package authstore implements an opaque, mostly-read lookup of admin,
// user and mount secrets, with the dialect-specific verification rules
// for producers and consumers.
//
// Persistent credential storage sits outside this package; it treats
// storage as an external collaborator's interface and implements the
// in-memory version of it, loaded from three tables (admins, users,
// mounts).
package authstore

import (
	"sync"

	"github.com/gnsscaster/ntripcaster/pkg/dialect"
)

// Reason distinguishes why a verification attempt failed.
type Reason string

const (
	OK                Reason = ""
	NoSuchMount       Reason = "no_such_mount"
	NoSuchUser        Reason = "no_such_user"
	BadUserPassword   Reason = "bad_user_password"
	BadMountPassword  Reason = "bad_mount_password"
	NotAuthorized     Reason = "not_authorized"
)

// Admin is an administrator credential record.
type Admin struct {
	Name string
	Hash string // "<salt>$<hex-digest>" or legacy plaintext
}

// User is a consumer (rover) credential record.
type User struct {
	Name string
	Hash string
}

// MountCred is a mount's producer secret and optional owning user, for
// NTRIP/2.0's ownership check.
type MountCred struct {
	Name     string
	Secret   string
	OwnerUser string // empty if unowned
}

// Store is the in-memory CredentialStore. A single RWMutex guards all
// three tables; reads vastly outnumber writes (new users/mounts are
// provisioned rarely, via the CLI admin subcommands or the external
// admin surface), so lookups take the read lock.
type Store struct {
	mu     sync.RWMutex
	admins map[string]Admin
	users  map[string]User
	mounts map[string]MountCred
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		admins: make(map[string]Admin),
		users:  make(map[string]User),
		mounts: make(map[string]MountCred),
	}
}

// PutAdmin inserts or replaces an admin record.
func (s *Store) PutAdmin(name, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[name] = Admin{Name: name, Hash: hash}
	return nil
}

// PutUser inserts or replaces a user record.
func (s *Store) PutUser(name, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[name] = User{Name: name, Hash: hash}
	return nil
}

// PutUserLegacyPlaintext inserts or replaces a user record with its
// password stored verbatim rather than PBKDF2-hashed, the migration
// path for imported accounts that predate hashed storage. Only
// accounts stored this way can authenticate via Digest (see
// verifyDigest's doc comment in pkg/dispatcher/auth.go), since Digest's
// HA1 needs the plaintext password back, which a PBKDF2 hash can't
// yield.
func (s *Store) PutUserLegacyPlaintext(name, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[name] = User{Name: name, Hash: password}
}

// PutMount inserts or replaces a mount credential record. secret is
// stored verbatim — mount secrets are compared as plain strings, not
// hashed (they authenticate a base station, not a person).
func (s *Store) PutMount(name, secret, ownerUser string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts[name] = MountCred{Name: name, Secret: secret, OwnerUser: ownerUser}
}

// DeleteMount removes a mount credential record.
func (s *Store) DeleteMount(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mounts, name)
}

// VerifyAdmin checks an administrator's password.
func (s *Store) VerifyAdmin(name, password string) bool {
	s.mu.RLock()
	a, ok := s.admins[name]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return VerifyPassword(password, a.Hash)
}

// VerifyMountProducer applies the per-dialect producer verification
// rule. For V08/V10Native/V10HTTP/RTSP, only the mount secret matters.
// For V20, the uploading user must also authenticate and, if the mount
// has an owner, must be that owner.
func (s *Store) VerifyMountProducer(mount string, d dialect.Dialect, suppliedPassword, suppliedUser, suppliedUserPassword string) Reason {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mc, ok := s.mounts[mount]
	if !ok {
		return NoSuchMount
	}

	if d != dialect.V20 {
		if mc.Secret != suppliedPassword {
			return BadMountPassword
		}
		return OK
	}

	u, ok := s.users[suppliedUser]
	if !ok {
		return NoSuchUser
	}
	if !VerifyPassword(suppliedUserPassword, u.Hash) {
		return BadUserPassword
	}
	if mc.OwnerUser != "" && mc.OwnerUser != u.Name {
		return NotAuthorized
	}
	return OK
}

// VerifyConsumer checks consumer credentials: the mount must exist and
// the user's credentials must check out. Mount ownership is never
// consulted for consumers.
func (s *Store) VerifyConsumer(mount, user, password string) Reason {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.mounts[mount]; !ok {
		return NoSuchMount
	}
	u, ok := s.users[user]
	if !ok {
		return NoSuchUser
	}
	if !VerifyPassword(password, u.Hash) {
		return BadUserPassword
	}
	return OK
}

// MountSecret returns a mount's producer secret, for digest-auth HA1
// computation. The bool is false if the mount has no credential.
func (s *Store) MountSecret(mount string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.mounts[mount]
	return mc.Secret, ok
}

// UserHash returns a user's stored verification hash, for digest-auth
// HA1 computation (digest auth needs the plaintext password, which
// this store never retains for hashed entries — see the doc comment on
// verifyDigest in pkg/dispatcher/auth.go for the consequence).
func (s *Store) UserHash(user string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[user]
	return u.Hash, ok
}

// MountOwner returns a mount's owning user (empty if unowned). It lets
// a caller that has already authenticated a user out-of-band (Digest)
// apply the same ownership rule VerifyMountProducer enforces for V20,
// when it has no plaintext user password to pass to VerifyMountProducer.
func (s *Store) MountOwner(mount string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.mounts[mount]
	return mc.OwnerUser, ok
}

// ListMounts returns the names of all provisioned mount credentials.
func (s *Store) ListMounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.mounts))
	for n := range s.mounts {
		names = append(names, n)
	}
	return names
}

// ListUsers returns the names of all provisioned users.
func (s *Store) ListUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.users))
	for n := range s.users {
		names = append(names, n)
	}
	return names
}

package authstore

import (
	"encoding/json"
	"os"
)

// Seed is the plaintext bootstrap shape the cmd/ntripcasterd
// adduser/addmount subcommands write to disk, and LoadSeedFile reads
// to populate a fresh Store at startup. Persistent credential storage
// itself is out of scope for this caster: a Seed file only bootstraps
// the in-memory Store once, at process start; every password in it is
// hashed into the Store's own records the same way serve would hash
// one typed in directly, and the file plays no further part once the
// caster is running.
type Seed struct {
	Admins []SeedEntry      `json:"admins,omitempty"`
	Users  []SeedEntry      `json:"users,omitempty"`
	Mounts []SeedMountEntry `json:"mounts,omitempty"`
}

// SeedEntry is one admin or user credential, in plaintext.
type SeedEntry struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// SeedMountEntry is one mount credential.
type SeedMountEntry struct {
	Name      string `json:"name"`
	Secret    string `json:"secret"`
	OwnerUser string `json:"owner_user,omitempty"`
}

// PutUser upserts a user entry by name.
func (s *Seed) PutUser(name, password string) {
	for i := range s.Users {
		if s.Users[i].Name == name {
			s.Users[i].Password = password
			return
		}
	}
	s.Users = append(s.Users, SeedEntry{Name: name, Password: password})
}

// PutMount upserts a mount entry by name.
func (s *Seed) PutMount(name, secret, owner string) {
	for i := range s.Mounts {
		if s.Mounts[i].Name == name {
			s.Mounts[i].Secret = secret
			s.Mounts[i].OwnerUser = owner
			return
		}
	}
	s.Mounts = append(s.Mounts, SeedMountEntry{Name: name, Secret: secret, OwnerUser: owner})
}

// ReadSeedFile reads a Seed from path. A missing file reads as an
// empty Seed rather than an error, since the first adduser/addmount
// run has nothing to read yet.
func ReadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Seed{}, nil
	}
	if err != nil {
		return Seed{}, err
	}
	defer f.Close()

	var seed Seed
	if err := json.NewDecoder(f).Decode(&seed); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

// WriteSeedFile writes seed to path as indented JSON, creating or
// truncating it.
func WriteSeedFile(path string, seed Seed) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(seed)
}

// LoadSeedFile reads a Seed file and hashes its entries into a fresh
// Store. A missing file yields an empty Store, so serve can start
// with no credentials provisioned yet.
func LoadSeedFile(path string) (*Store, error) {
	seed, err := ReadSeedFile(path)
	if err != nil {
		return nil, err
	}

	store := New()
	for _, a := range seed.Admins {
		if err := store.PutAdmin(a.Name, a.Password); err != nil {
			return nil, err
		}
	}
	for _, u := range seed.Users {
		if err := store.PutUser(u.Name, u.Password); err != nil {
			return nil, err
		}
	}
	for _, m := range seed.Mounts {
		store.PutMount(m.Name, m.Secret, m.OwnerUser)
	}
	return store, nil
}

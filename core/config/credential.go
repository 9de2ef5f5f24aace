package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"

	"github.com/AvaProtocol/aa-bridge/core/chainio/signer"
	"github.com/AvaProtocol/aa-bridge/pkg/logger"
)

const (
	OwnerKeyEnv      = "PRIVATE_KEY"
	TokenOwnerKeyEnv = "PRIVATE_KEY_TOKEN_OWNER"
	PaymasterKeyEnv  = "PAYMASTER_SIGNER_KEY"
)

// CredentialStore persists a single secret value.
type CredentialStore interface {
	Load() (value string, found bool, err error)
	Save(value string) error
}

// DotenvStore reads variables from the process environment first, then from a .env file.
// Writes go to the .env file and keep every other variable in it.
type DotenvStore struct {
	path string
}

func NewDotenvStore(path string) *DotenvStore {
	if path == "" {
		path = ".env"
	}
	return &DotenvStore{path: path}
}

func (s *DotenvStore) Path() string {
	return s.path
}

func (s *DotenvStore) read() (map[string]string, error) {
	values, err := godotenv.Read(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", s.path, err)
	}
	return values, nil
}

// Lookup returns a non empty variable, process environment first.
func (s *DotenvStore) Lookup(name string) (string, bool, error) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true, nil
	}
	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[name]
	v = strings.TrimSpace(v)
	return v, ok && v != "", nil
}

// Set writes name=value into the .env file.
func (s *DotenvStore) Set(name, value string) error {
	values, err := s.read()
	if err != nil {
		return err
	}
	values[name] = value
	if err := godotenv.Write(values, s.path); err != nil {
		return fmt.Errorf("cannot write %s: %w", s.path, err)
	}
	// the file holds private keys
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("cannot restrict permissions of %s: %w", s.path, err)
	}
	return nil
}

// Credential returns the CredentialStore view of one variable.
func (s *DotenvStore) Credential(name string) CredentialStore {
	return &dotenvCredential{store: s, name: name}
}

type dotenvCredential struct {
	store *DotenvStore
	name  string
}

func (c *dotenvCredential) Load() (string, bool, error) {
	return c.store.Lookup(c.name)
}

func (c *dotenvCredential) Save(value string) error {
	return c.store.Set(c.name, value)
}

// LoadOrCreateKey returns the stored key, or generates one and saves it so later runs
// resolve to the same smart account. created reports whether a key was generated.
func LoadOrCreateKey(store CredentialStore, lgr logger.Logger) (key *ecdsa.PrivateKey, created bool, err error) {
	lgr = logger.EnsureLogger(lgr)

	value, found, err := store.Load()
	if err != nil {
		return nil, false, err
	}
	if found {
		key, err := signer.ParsePrivateKey(value)
		if err != nil {
			return nil, false, fmt.Errorf("stored private key is invalid: %w", err)
		}
		return key, false, nil
	}

	key, err = crypto.GenerateKey()
	if err != nil {
		return nil, false, fmt.Errorf("cannot generate private key: %w", err)
	}
	if err := store.Save(hexutil.Encode(crypto.FromECDSA(key))); err != nil {
		return nil, false, fmt.Errorf("cannot persist new private key: %w", err)
	}
	lgr.Info("generated new owner key", "address", signer.Address(key).Hex())
	return key, true, nil
}

// LoadKey parses a required key variable.
func LoadKey(store CredentialStore, name string) (*ecdsa.PrivateKey, error) {
	value, found, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s is not set", name)
	}
	key, err := signer.ParsePrivateKey(value)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid private key: %w", name, err)
	}
	return key, nil
}

package crypto

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SaveToKeystore encrypts key into a v3 keystore file at path. Missing parent
// directories are created with 0700 permissions.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	encrypted, err := keystore.EncryptKey(&keystore.Key{
		Address:    gethcrypto.PubkeyToAddress(key.PrivateKey.PublicKey),
		PrivateKey: key.PrivateKey,
	}, passphrase, keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0o600); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFromKeystore decrypts a v3 keystore file using passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}

// LoadSigningKey resolves a signing key from either a keystore file or a hex
// string held in the named environment variable. The keystore wins when both
// are configured.
func LoadSigningKey(keystorePath, passphrase, hexEnv string) (*PrivateKey, error) {
	if strings.TrimSpace(keystorePath) != "" {
		return LoadFromKeystore(keystorePath, passphrase)
	}
	if env := strings.TrimSpace(hexEnv); env != "" {
		value := strings.TrimSpace(os.Getenv(env))
		if value == "" {
			return nil, errors.New("crypto: signing key environment variable is empty")
		}
		return PrivateKeyFromHex(value)
	}
	return nil, errors.New("crypto: no signing key configured")
}

package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"

	"github.com/fieldtrack/agent/pkg/file"
)

// EncryptionManagerInterface defines encryption and decryption methods.
type EncryptionManagerInterface interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// scrypt parameters for passphrase-derived keys.
const (
	scryptN       = 1 << 15
	scryptR       = 8
	scryptP       = 1
	saltSize      = 16
	derivedKeyLen = 32
)

// EncryptionManager implements AES-GCM encryption for the cache files.
type EncryptionManager struct {
	key        []byte
	fileClient file.FileOperations
	aesgcm     cipher.AEAD
}

// NewEncryptionManager creates a new EncryptionManager instance.
func NewEncryptionManager(fileClient file.FileOperations) *EncryptionManager {
	return &EncryptionManager{fileClient: fileClient}
}

// Initialize loads and caches the AES key and cipher from a raw key file.
func (a *EncryptionManager) Initialize(AESKeyPath string) error {
	key, err := a.fileClient.ReadFileRaw(AESKeyPath)
	if err != nil || len(key) == 0 {
		return fmt.Errorf("failed to read or validate AES key: %w", err)
	}
	const keySize = 32
	if len(key) != keySize {
		return fmt.Errorf("invalid AES key size: got %d bytes, want %d bytes", len(key), keySize)
	}

	return a.setKey(key)
}

// InitializeFromPassphrase derives the AES key from a passphrase with
// scrypt. The salt lives next to the cache; it is created on first use
// and reused afterwards so the same passphrase keeps decrypting old
// cache files.
func (a *EncryptionManager) InitializeFromPassphrase(passphrase, saltPath string) error {
	if passphrase == "" {
		return errors.New("empty encryption passphrase")
	}

	salt, err := a.loadOrCreateSalt(saltPath)
	if err != nil {
		return err
	}

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, derivedKeyLen)
	if err != nil {
		return fmt.Errorf("failed to derive key from passphrase: %w", err)
	}

	return a.setKey(key)
}

func (a *EncryptionManager) loadOrCreateSalt(saltPath string) ([]byte, error) {
	exists, err := a.fileClient.IsFileExists(saltPath)
	if err != nil {
		return nil, fmt.Errorf("failed to check salt file: %w", err)
	}

	if exists {
		salt, err := a.fileClient.ReadFileRaw(saltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read salt file: %w", err)
		}
		if len(salt) != saltSize {
			return nil, fmt.Errorf("invalid salt size: got %d bytes, want %d bytes", len(salt), saltSize)
		}
		return salt, nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := a.fileClient.WriteFileRaw(saltPath, salt); err != nil {
		return nil, fmt.Errorf("failed to persist salt file: %w", err)
	}
	return salt, nil
}

// setKey caches the AES-GCM object for the given key.
func (a *EncryptionManager) setKey(key []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create AES cipher block: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create AES-GCM: %w", err)
	}

	a.key = key
	a.aesgcm = aesgcm
	return nil
}

// Encrypt encrypts plaintext using AES-GCM.
func (a *EncryptionManager) Encrypt(plaintext []byte) ([]byte, error) {
	if a.aesgcm == nil {
		return nil, errors.New("encryption manager not initialized")
	}

	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := a.aesgcm.Seal(nonce[:], nonce[:], plaintext, nil)
	return ciphertext, nil
}

// Decrypt decrypts ciphertext using AES-GCM.
func (a *EncryptionManager) Decrypt(ciphertext []byte) ([]byte, error) {
	const nonceSize = 12
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short: must include nonce and encrypted data")
	}

	nonce := ciphertext[:nonceSize]
	encryptedData := ciphertext[nonceSize:]

	if a.aesgcm == nil {
		return nil, errors.New("encryption manager not initialized")
	}

	plaintext, err := a.aesgcm.Open(nil, nonce, encryptedData, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

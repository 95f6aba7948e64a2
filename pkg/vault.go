package pkg

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Source files for fs.cp may be stored encrypted in the Ansible vault 1.1
// format (AES256-CTR, PBKDF2-SHA256 key derivation, HMAC-SHA256).
const (
	vaultHeaderPrefix = "$ANSIBLE_VAULT;"
	vaultHeader       = "$ANSIBLE_VAULT;1.1;AES256"
	vaultIterations   = 10000
	vaultLineWidth    = 80
)

// VaultText is a parsed encrypted file.
type VaultText struct {
	Version    string
	Cipher     string
	VaultID    string
	CipherText string
}

// IsVaultText reports whether data starts with a vault header.
func IsVaultText(data []byte) bool {
	return strings.HasPrefix(strings.TrimLeft(string(data), " \t\r\n"), vaultHeaderPrefix)
}

// ParseVaultText parses the header and hex payload of an encrypted file.
func ParseVaultText(data []byte) (*VaultText, error) {
	if !IsVaultText(data) {
		return nil, fmt.Errorf("not a vault encrypted file")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	headerParts := strings.Split(strings.TrimSpace(lines[0]), ";")
	if len(headerParts) < 3 {
		return nil, fmt.Errorf("missing header parts, found %d parts", len(headerParts))
	}

	var payload strings.Builder
	for _, line := range lines[1:] {
		payload.WriteString(strings.TrimSpace(line))
	}
	if payload.Len() == 0 {
		return nil, fmt.Errorf("vault file has no payload")
	}

	vt := &VaultText{
		Version:    headerParts[1],
		Cipher:     headerParts[2],
		CipherText: payload.String(),
	}
	if len(headerParts) > 3 {
		vt.VaultID = headerParts[3]
	}
	if vt.Cipher != "AES256" {
		return nil, fmt.Errorf("unsupported vault cipher %q", vt.Cipher)
	}
	return vt, nil
}

// deriveVaultKeys splits the PBKDF2 output into cipher key, HMAC key and IV.
func deriveVaultKeys(password string, salt []byte) (cipherKey, hmacKey, iv []byte) {
	derived := pbkdf2.Key([]byte(password), salt, vaultIterations, 80, sha256.New)
	return derived[:32], derived[32:64], derived[64:80]
}

// EncryptVault encrypts plaintext and returns the complete file contents.
func EncryptVault(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	cipherKey, hmacKey, iv := deriveVaultKeys(password, salt)

	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	// PKCS#7 padding, a full block when already aligned.
	padLen := aes.BlockSize - (len(plaintext) % aes.BlockSize)
	padded := make([]byte, len(plaintext)+padLen)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, padded)

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(ciphertext)

	inner := hex.EncodeToString(salt) + "\n" + hex.EncodeToString(mac.Sum(nil)) + "\n" + hex.EncodeToString(ciphertext)
	outer := hex.EncodeToString([]byte(inner))

	var b strings.Builder
	b.WriteString(vaultHeader + "\n")
	for len(outer) > vaultLineWidth {
		b.WriteString(outer[:vaultLineWidth] + "\n")
		outer = outer[vaultLineWidth:]
	}
	b.WriteString(outer + "\n")
	return []byte(b.String()), nil
}

// Decrypt returns the plaintext, verifying the HMAC first.
func (vt *VaultText) Decrypt(password string) ([]byte, error) {
	outer, err := hex.DecodeString(vt.CipherText)
	if err != nil {
		return nil, fmt.Errorf("failed outer hex decode: %w", err)
	}
	parts := strings.Split(string(outer), "\n")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid vault payload parts: %d", len(parts))
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	expectedMAC, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode hmac: %w", err)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	cipherKey, hmacKey, iv := deriveVaultKeys(password, salt)
	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(ciphertext)
	if !hmac.Equal(mac.Sum(nil), expectedMAC) {
		return nil, fmt.Errorf("HMAC verification failed, wrong password?")
	}

	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plaintext, ciphertext)

	if len(plaintext) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(plaintext[len(plaintext)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(plaintext) {
		return nil, fmt.Errorf("invalid padding")
	}
	for i := len(plaintext) - pad; i < len(plaintext); i++ {
		if int(plaintext[i]) != pad {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return plaintext[:len(plaintext)-pad], nil
}

// DecryptIfVault returns data unchanged unless it is vault encrypted, in
// which case it is decrypted with password.
func DecryptIfVault(data []byte, password string) ([]byte, error) {
	if !IsVaultText(data) {
		return data, nil
	}
	vt, err := ParseVaultText(data)
	if err != nil {
		return nil, err
	}
	return vt.Decrypt(password)
}

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// keyPrefix and keyVersion lead every API key: ms-v1-<secret_id>-<random>.
const (
	keyPrefix  = "ms"
	keyVersion = "v1"
)

// ParseAPIKey extracts secret_id and random_data from API key format.
// Format: ms-v1-<secret_id>-<random_data>, 32 and 64 lowercase hex chars.
// Returns ErrInvalidKeyFormat if format doesn't match.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 || parts[0] != keyPrefix || parts[1] != keyVersion {
		return "", "", ErrInvalidKeyFormat
	}

	secretID = parts[2]
	randomData = parts[3]
	if len(secretID) != 32 || len(randomData) != 64 {
		return "", "", ErrInvalidKeyFormat
	}
	for _, c := range secretID + randomData {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", "", ErrInvalidKeyFormat
		}
	}

	return secretID, randomData, nil
}

// ComputeHMAC computes HMAC-SHA256 signature of API key using secret.
func ComputeHMAC(secret []byte, apiKey string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

// FormatAPIKey constructs API key from components.
func FormatAPIKey(secretID, randomData string) string {
	return fmt.Sprintf("%s-%s-%s-%s", keyPrefix, keyVersion, secretID, randomData)
}

// IssuedKey is a freshly created API key. Key is shown once; only its HMAC
// is stored.
type IssuedKey struct {
	ID       string
	Name     string
	SecretID string
	Key      string
}

// CreateAPIKey generates a key signed with the secret registered under
// secretID and stores its hash.
func CreateAPIKey(ctx context.Context, queries Queries, secrets map[string][]byte, secretID, name string) (IssuedKey, error) {
	secret, ok := secrets[secretID]
	if !ok {
		return IssuedKey{}, fmt.Errorf("%w: %s", ErrUnknownKey, secretID)
	}
	if strings.TrimSpace(name) == "" {
		return IssuedKey{}, fmt.Errorf("api key name is required")
	}

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return IssuedKey{}, fmt.Errorf("generate api key: %w", err)
	}
	key := FormatAPIKey(secretID, hex.EncodeToString(random))
	id := uuid.Must(uuid.NewV7()).String()

	if _, err := queries.ExecContext(ctx, "insert-api-key", id, name, secretID, ComputeHMAC(secret, key), time.Now().UTC()); err != nil {
		return IssuedKey{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return IssuedKey{ID: id, Name: name, SecretID: secretID, Key: key}, nil
}

// RevokeAPIKey revokes the key with the given id. Revoking twice is an error.
func RevokeAPIKey(ctx context.Context, queries Queries, id string) error {
	res, err := queries.ExecContext(ctx, "revoke-api-key", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("api key %s not found or already revoked", id)
	}
	return nil
}

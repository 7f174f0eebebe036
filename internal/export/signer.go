package export

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidToken is returned for missing, expired or forged download tokens.
var ErrInvalidToken = errors.New("invalid download token")

// downloadSigner issues HMAC tokens of the form id:expiry:signature.
type downloadSigner struct {
	secret []byte
	ttl    time.Duration
}

func newDownloadSigner(ttl time.Duration) *downloadSigner {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &downloadSigner{secret: []byte(uuid.New().String()), ttl: ttl}
}

func (s *downloadSigner) mac(payload string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func (s *downloadSigner) Sign(id uuid.UUID, now time.Time) string {
	payload := fmt.Sprintf("%s:%d", id.String(), now.Add(s.ttl).Unix())
	raw := payload + ":" + hex.EncodeToString(s.mac(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func (s *downloadSigner) Verify(id uuid.UUID, token string, now time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: missing", ErrInvalidToken)
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	parts := strings.Split(string(decoded), ":")
	if len(parts) != 3 {
		return fmt.Errorf("%w: bad format", ErrInvalidToken)
	}
	if parts[0] != id.String() {
		return fmt.Errorf("%w: token does not match export", ErrInvalidToken)
	}
	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad expiry", ErrInvalidToken)
	}
	if now.Unix() > expires {
		return fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	provided, err := hex.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: bad signature", ErrInvalidToken)
	}
	if !hmac.Equal(s.mac(parts[0]+":"+parts[1]), provided) {
		return ErrInvalidToken
	}
	return nil
}

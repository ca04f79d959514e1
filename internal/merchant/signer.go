package merchant

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"

	"merchantpay/internal/domain"
)

// Signer produces and checks Rest-Sign values: base64(HMAC-SHA512(secret, body)).
type Signer struct {
	secret []byte
}

func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("merchant api secret is empty")
	}
	return &Signer{secret: secret}, nil
}

// NewSignerFromBase64 decodes the secret the way the merchant API hands it out.
func NewSignerFromBase64(encoded string) (*Signer, error) {
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode merchant api secret: %w", err)
	}
	return NewSigner(secret)
}

func (s *Signer) mac(body []byte) []byte {
	h := hmac.New(sha512.New, s.secret)
	h.Write(body)
	return h.Sum(nil)
}

// Sign must be given the exact bytes that go on the wire.
func (s *Signer) Sign(body []byte) string {
	return base64.StdEncoding.EncodeToString(s.mac(body))
}

// Verify checks a received signature against the raw, unparsed body.
func (s *Signer) Verify(body []byte, signature string) error {
	received, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", domain.ErrAuthenticationFailed)
	}
	if !hmac.Equal(received, s.mac(body)) {
		return domain.ErrAuthenticationFailed
	}
	return nil
}

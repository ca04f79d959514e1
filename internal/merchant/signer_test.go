package merchant

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchantpay/internal/domain"
)

var testSecret = []byte("super-secret-merchant-key")

func TestSigner_SignMatchesHMACSHA512(t *testing.T) {
	s, err := NewSigner(testSecret)
	require.NoError(t, err)

	body := []byte("amount=1.5&currency=BTC")
	mac := hmac.New(sha512.New, testSecret)
	mac.Write(body)

	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), s.Sign(body))
}

func TestSigner_Verify(t *testing.T) {
	s, err := NewSigner(testSecret)
	require.NoError(t, err)

	body := []byte("status=paid&payment_id=p-1&data=%5B1%2C%22k%22%5D")
	sig := s.Sign(body)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, s.Verify(body, sig))
	})

	t.Run("tampered body", func(t *testing.T) {
		tampered := append([]byte(nil), body...)
		tampered[7] = 'P'
		assert.ErrorIs(t, s.Verify(tampered, sig), domain.ErrAuthenticationFailed)
	})

	t.Run("not base64", func(t *testing.T) {
		assert.ErrorIs(t, s.Verify(body, "%%%"), domain.ErrAuthenticationFailed)
	})

	t.Run("empty header", func(t *testing.T) {
		assert.ErrorIs(t, s.Verify(body, ""), domain.ErrAuthenticationFailed)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := NewSigner([]byte("another-secret"))
		require.NoError(t, err)
		assert.ErrorIs(t, other.Verify(body, sig), domain.ErrAuthenticationFailed)
	})
}

func TestNewSignerFromBase64(t *testing.T) {
	s, err := NewSignerFromBase64(base64.StdEncoding.EncodeToString(testSecret))
	require.NoError(t, err)
	assert.Equal(t, testSecret, s.secret)

	_, err = NewSignerFromBase64("not base64!")
	assert.Error(t, err)

	_, err = NewSignerFromBase64("")
	assert.Error(t, err)
}

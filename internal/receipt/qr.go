package receipt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"ms-booking/internal/models"

	"github.com/skip2/go-qrcode"
)

// QRGenerator renders a receipt as a PNG QR code whose content is the receipt
// snapshot sealed with AES-GCM, so a scanned code can be verified offline by
// whoever holds the secret.
type QRGenerator struct {
	aead cipher.AEAD
}

func NewQRGenerator(secret string) (*QRGenerator, error) {
	if secret == "" {
		return nil, errors.New("receipt QR secret is empty")
	}
	hashed := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(hashed[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &QRGenerator{aead: aead}, nil
}

// Seal encrypts the receipt into the URL-safe string placed in the QR code.
func (q *QRGenerator) Seal(r *models.Receipt) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, q.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := q.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal and fails if the payload was altered.
func (q *QRGenerator) Open(payload string) (*models.Receipt, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode receipt payload: %w", err)
	}
	ns := q.aead.NonceSize()
	if len(raw) < ns {
		return nil, errors.New("receipt payload too short")
	}
	data, err := q.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("receipt payload failed verification: %w", err)
	}
	var r models.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *QRGenerator) PNG(r *models.Receipt, size int) ([]byte, error) {
	payload, err := q.Seal(r)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

package export

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"classbook/internal/models"

	"github.com/skip2/go-qrcode"
)

// PassClaims identifies the booking a pass was issued for.
type PassClaims struct {
	BookingID int64
	AccountID int64
	ClassID   int64
}

// PassPayload returns "booking_id:account_id:class_id:signature".
func (e *Exporter) PassPayload(b models.Booking) string {
	data := fmt.Sprintf("%d:%d:%d", b.ID, b.AccountID, b.ClassID)
	return data + ":" + e.sign(data)
}

// PassPNG encodes the signed payload as a QR code image.
func (e *Exporter) PassPNG(b models.Booking, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(e.PassPayload(b), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// VerifyPass checks the signature and returns the booking references.
func (e *Exporter) VerifyPass(payload string) (PassClaims, error) {
	idx := strings.LastIndexByte(payload, ':')
	if idx < 0 {
		return PassClaims{}, ErrInvalidPass
	}
	data, sig := payload[:idx], payload[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(e.sign(data))) {
		return PassClaims{}, ErrInvalidPass
	}

	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return PassClaims{}, ErrInvalidPass
	}
	var ids [3]int64
	for i, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return PassClaims{}, ErrInvalidPass
		}
		ids[i] = id
	}
	return PassClaims{BookingID: ids[0], AccountID: ids[1], ClassID: ids[2]}, nil
}

func (e *Exporter) sign(data string) string {
	h := hmac.New(sha256.New, e.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

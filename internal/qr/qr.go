// Package qr renders verification links as scannable images.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const imageSize = 256

// DataURL encodes the URL as a PNG QR code wrapped in a data URL, suitable
// for embedding in JSON responses and chat messages.
func DataURL(url string) (string, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, imageSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// PNG returns the raw PNG bytes, used when attaching the code as a file.
func PNG(url string) ([]byte, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, imageSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

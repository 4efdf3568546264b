// Package qr turns raw login challenge text into a scannable image a
// browser can render directly.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const imageSize = 256 // pixels, square

// DataURL encodes challenge text as a PNG QR code wrapped in a data URL.
// Called once per challenge event so the encoding cost does not scale with
// subscriber count.
func DataURL(challenge string) (string, error) {
	png, err := qrcode.Encode(challenge, qrcode.Medium, imageSize)
	if err != nil {
		return "", fmt.Errorf("qr encode: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

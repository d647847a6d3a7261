package whatsapp

import (
	"encoding/base64"
	"errors"
	"io"

	"github.com/mdp/qrterminal"
	qrCode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
)

// QRDataURL renders a pairing code as a PNG data URL.
func QRDataURL(code string) (string, error) {
	if code == "" {
		return "", errors.New("qr code is empty")
	}
	qrPNG, err := qrCode.Encode(code, qrCode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrPNG), nil
}

// RenderQRTerminal writes a pairing code as half-block characters for a terminal.
func RenderQRTerminal(w io.Writer, code string) {
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}

// qrItemError maps a terminal QR channel item to the reason pairing stopped.
// It returns nil for items that do not end pairing.
func qrItemError(item whatsmeow.QRChannelItem) error {
	switch item.Event {
	case whatsmeow.QRChannelTimeout.Event:
		return errors.New("qr pairing timed out")
	case whatsmeow.QRChannelErrUnexpectedEvent.Event:
		return errors.New("qr channel entered an unexpected state")
	case whatsmeow.QRChannelClientOutdated.Event:
		return ErrWAVersionOutdatedForQR
	case whatsmeow.QRChannelScannedWithoutMultidevice.Event:
		return errors.New("qr scanned without multi-device enabled")
	case "error":
		if item.Error != nil {
			return item.Error
		}
		return errors.New("qr channel reported an unspecified error")
	}
	return nil
}

package whatsapp

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
)

func TestQRDataURL(t *testing.T) {
	url, err := QRDataURL("2@abc,def,ghi")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	_, err = QRDataURL("")
	assert.Error(t, err)
}

func TestRenderQRTerminal(t *testing.T) {
	var buf bytes.Buffer
	RenderQRTerminal(&buf, "2@abc,def,ghi")
	assert.NotZero(t, buf.Len())
}

func TestQRItemError(t *testing.T) {
	assert.NoError(t, qrItemError(whatsmeow.QRChannelItem{Event: "code", Code: "x"}))
	assert.NoError(t, qrItemError(whatsmeow.QRChannelSuccess))
	assert.EqualError(t, qrItemError(whatsmeow.QRChannelTimeout), "qr pairing timed out")
	assert.ErrorIs(t, qrItemError(whatsmeow.QRChannelClientOutdated), ErrWAVersionOutdatedForQR)

	cause := errors.New("websocket closed")
	assert.ErrorIs(t, qrItemError(whatsmeow.QRChannelItem{Event: "error", Error: cause}), cause)
}

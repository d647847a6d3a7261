package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sunshineplan/imgconv"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
)

const defaultMediaMaxBytes = 16 * 1024 * 1024

// MediaResolver turns an outbound media URL into a media payload.
// http(s) and base64 data: URLs are accepted.
type MediaResolver struct {
	HTTPClient *http.Client
	MaxBytes   int64
}

func NewMediaResolver() *MediaResolver {
	maxBytes, err := env.GetEnvInt64("WHATSAPP_MEDIA_MAX_BYTES")
	if err != nil || maxBytes <= 0 {
		maxBytes = defaultMediaMaxBytes
	}
	return &MediaResolver{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		MaxBytes:   maxBytes,
	}
}

func (r *MediaResolver) Resolve(ctx context.Context, rawURL string) (*Media, error) {
	media, err := r.resolve(ctx, strings.TrimSpace(rawURL))
	if err != nil {
		return nil, MediaFetchError("resolve media", err)
	}
	return media, nil
}

func (r *MediaResolver) resolve(ctx context.Context, raw string) (*Media, error) {
	if raw == "" {
		return nil, errors.New("media url is empty")
	}

	if strings.HasPrefix(raw, "data:") {
		declared, data, err := decodeDataURL(raw)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > r.maxBytes() {
			return nil, fmt.Errorf("media too large (%d bytes)", len(data))
		}
		mt := detectMimetype(declared, data)
		return &Media{Mimetype: mt, Data: data, Filename: fallbackFilename(mt)}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported media url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes()+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > r.maxBytes() {
		return nil, fmt.Errorf("media too large (more than %d bytes)", r.maxBytes())
	}
	if len(data) == 0 {
		return nil, errors.New("media is empty")
	}

	mt := detectMimetype(resp.Header.Get("Content-Type"), data)
	filename := path.Base(u.Path)
	if filename == "." || filename == "/" || path.Ext(filename) == "" {
		filename = fallbackFilename(mt)
	}
	return &Media{Mimetype: mt, Data: data, Filename: filename}, nil
}

func (r *MediaResolver) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return http.DefaultClient
}

func (r *MediaResolver) maxBytes() int64 {
	if r.MaxBytes > 0 {
		return r.MaxBytes
	}
	return defaultMediaMaxBytes
}

func decodeDataURL(raw string) (string, []byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return "", nil, errors.New("invalid data url format")
	}

	declared := ""
	base64Encoded := false
	for i, seg := range strings.Split(meta, ";") {
		seg = strings.TrimSpace(seg)
		if i == 0 {
			declared = seg
			continue
		}
		if strings.EqualFold(seg, "base64") {
			base64Encoded = true
		}
	}
	if !base64Encoded {
		return "", nil, errors.New("data url must be base64 encoded")
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url: %w", err)
	}
	return declared, decoded, nil
}

// detectMimetype prefers a specific declared type and sniffs the payload otherwise.
func detectMimetype(declared string, data []byte) string {
	if declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil && parsed != "application/octet-stream" {
			return parsed
		}
	}
	detected := mimetype.Detect(data).String()
	if parsed, _, err := mime.ParseMediaType(detected); err == nil {
		return parsed
	}
	return "application/octet-stream"
}

func fallbackFilename(mt string) string {
	if m := mimetype.Lookup(mt); m != nil {
		return "file" + m.Extension()
	}
	return "file"
}

// convertWebPToPNG re-encodes a webp image as png.
func convertWebPToPNG(data []byte) ([]byte, error) {
	decoded, err := imgconv.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode webp image: %w", err)
	}
	encoded := new(bytes.Buffer)
	if err := imgconv.Write(encoded, decoded, &imgconv.FormatOption{Format: imgconv.PNG}); err != nil {
		return nil, fmt.Errorf("encode png image: %w", err)
	}
	return encoded.Bytes(), nil
}

// jpegThumbnail produces the small preview WhatsApp shows before an image is downloaded.
func jpegThumbnail(data []byte) ([]byte, error) {
	decoded, err := imgconv.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail image: %w", err)
	}
	encoded := new(bytes.Buffer)
	err = imgconv.Write(encoded,
		imgconv.Resize(decoded, &imgconv.ResizeOption{Width: 72}),
		&imgconv.FormatOption{Format: imgconv.JPEG})
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail image: %w", err)
	}
	return encoded.Bytes(), nil
}

package model

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Chart is a screenshot of a price chart.
type Chart struct {
	Data     []byte
	MIMEType string
}

// ErrNotImage is returned for payloads that do not sniff as an image.
var ErrNotImage = errors.New("payload is not an image")

// ParseChart wraps raw image bytes, detecting the MIME type from content.
func ParseChart(data []byte) (Chart, error) {
	if len(data) == 0 {
		return Chart{}, errors.New("chart image is empty")
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return Chart{}, fmt.Errorf("%w: detected %s", ErrNotImage, mime)
	}
	return Chart{Data: data, MIMEType: mime}, nil
}

// ParseDataURL decodes a "data:image/png;base64,..." string, as produced by
// a browser canvas or clipboard paste.
func ParseDataURL(s string) (Chart, error) {
	s = strings.TrimSpace(s)
	rest, found := strings.CutPrefix(s, "data:")
	if !found {
		return Chart{}, errors.New("not a data URL")
	}
	header, payload, found := strings.Cut(rest, ",")
	if !found {
		return Chart{}, errors.New("data URL has no payload")
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return Chart{}, errors.New("data URL is not base64 encoded")
	}
	if !strings.HasPrefix(mime, "image/") {
		return Chart{}, fmt.Errorf("%w: declared %s", ErrNotImage, mime)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Chart{}, fmt.Errorf("failed to decode data URL: %w", err)
	}
	if len(data) == 0 {
		return Chart{}, errors.New("chart image is empty")
	}
	return Chart{Data: data, MIMEType: mime}, nil
}

// DataURL encodes the chart back into data URL form.
func (c Chart) DataURL() string {
	return "data:" + c.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(c.Data)
}

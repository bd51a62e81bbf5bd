package hostapi

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// decodeText converts a response body to UTF-8. The charset parameter of
// contentType wins; without one, valid UTF-8 is kept as is and anything
// else goes through charset detection.
func decodeText(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}

	label := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = strings.ToLower(strings.TrimSpace(params["charset"]))
	}
	if label == "" {
		if utf8.Valid(body) {
			return string(body)
		}
		label = detectCharset(body)
	}
	if label == "utf-8" || label == "utf8" {
		return string(body)
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(out)
}

func detectCharset(data []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

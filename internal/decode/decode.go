// Package decode normalizes fetched bytes by media type.
//
// JSON is parsed and re-serialized canonically (sorted keys, compact). XML is
// parsed into a tree and the root element re-serialized, dropping the prolog,
// comments and processing instructions. Everything else passes through
// unmodified. The first matching rule wins.
package decode

import (
	"bytes"
	"io"
	"mime"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/pagetools/internal/shared/hash"
	"github.com/GriffinCanCode/pagetools/internal/task"
)

// Payload is a decoded body
type Payload struct {
	Data []byte
	// MediaType is the declared type, or the sniffed one when none was declared
	MediaType string
	// Charset is the declared or detected text encoding, empty for binary
	Charset string
}

var canonicalJSON = sonic.Config{
	SortMapKeys:    true,
	UseNumber:      true,
	ValidateString: true,
}.Froze()

// Decode applies the media type rules to raw. An empty media type is sniffed
// from the content first.
func Decode(raw []byte, mediaType string) (Payload, error) {
	if strings.TrimSpace(mediaType) == "" {
		mediaType = Sniff(raw)
	}
	p := Payload{MediaType: mediaType}
	lower := strings.ToLower(mediaType)

	switch {
	case strings.Contains(lower, "application/json"):
		data, err := CanonicalJSON(raw)
		if err != nil {
			return Payload{}, task.NewError(task.ErrMalformedJSON, err, "invalid json body")
		}
		p.Data = data
		p.Charset = "utf-8"
	case strings.Contains(lower, "xml"):
		data, err := CanonicalXML(raw)
		if err != nil {
			return Payload{}, task.NewError(task.ErrMalformedXML, err, "invalid xml body")
		}
		p.Data = data
		p.Charset = detectCharset(raw, mediaType)
	default:
		p.Data = raw
		if IsText(mediaType) {
			p.Charset = detectCharset(raw, mediaType)
		}
	}
	return p, nil
}

// CanonicalJSON parses raw and re-serializes it compactly with sorted object
// keys. Numbers keep their literal form.
func CanonicalJSON(raw []byte) ([]byte, error) {
	var v interface{}
	if err := canonicalJSON.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return canonicalJSON.Marshal(v)
}

// Sniff detects the media type from content
func Sniff(raw []byte) string {
	return mimetype.Detect(raw).String()
}

// BaseType returns the lower-cased media type without parameters
func BaseType(mediaType string) string {
	base, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(strings.SplitN(mediaType, ";", 2)[0]))
	}
	return base
}

// IsText reports whether mediaType carries text
func IsText(mediaType string) bool {
	base := BaseType(mediaType)
	if strings.HasPrefix(base, "text/") {
		return true
	}
	for _, suffix := range []string{"json", "xml", "javascript", "x-www-form-urlencoded"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// IsImage reports whether raw is an image by content, ignoring any declared type
func IsImage(raw []byte) bool {
	return strings.HasPrefix(mimetype.Detect(raw).String(), "image/")
}

// Text returns the payload as UTF-8 text, converting from its charset
func (p Payload) Text() (string, error) {
	if p.Charset == "" || strings.EqualFold(p.Charset, "utf-8") {
		return string(p.Data), nil
	}
	r, err := charset.NewReaderLabel(p.Charset, bytes.NewReader(p.Data))
	if err != nil {
		// Unknown label, treat as UTF-8
		return string(p.Data), nil
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Fingerprint identifies the payload as a text source: the same bytes under
// a different media type or charset read as different text
func (p Payload) Fingerprint() []byte {
	return hash.Frame(
		[]byte(BaseType(p.MediaType)),
		[]byte(strings.ToLower(p.Charset)),
		p.Data,
	)
}

// detectCharset prefers the declared charset parameter, then content detection
func detectCharset(raw []byte, mediaType string) string {
	if _, params, err := mime.ParseMediaType(mediaType); err == nil {
		if cs := params["charset"]; cs != "" {
			return strings.ToLower(cs)
		}
	}
	if len(raw) == 0 {
		return "utf-8"
	}
	if _, name, certain := charset.DetermineEncoding(raw, mediaType); certain {
		return strings.ToLower(name)
	}
	res, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || res == nil {
		return "utf-8"
	}
	return strings.ToLower(res.Charset)
}

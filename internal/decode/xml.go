package decode

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

var errNoRoot = errors.New("no root element")

// CanonicalXML parses raw and re-serializes its root element. Content outside
// the root, comments, processing instructions and directives are dropped.
// Attribute order and namespace prefixes are preserved as written.
func CanonicalXML(raw []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.NewReaderLabel

	var (
		out   bytes.Buffer
		stack []xml.Name
		done  bool
		// pending holds an open tag not yet closed with '>' so empty
		// elements can be written as <a/>
		pending bool
	)

	flush := func() {
		if pending {
			out.WriteByte('>')
			pending = false
		}
	}

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if done {
				return nil, fmt.Errorf("unexpected element <%s> after root", qualified(t.Name))
			}
			flush()
			out.WriteByte('<')
			out.WriteString(qualified(t.Name))
			for _, a := range t.Attr {
				out.WriteByte(' ')
				out.WriteString(qualified(a.Name))
				out.WriteString(`="`)
				escapeAttr(&out, a.Value)
				out.WriteByte('"')
			}
			pending = true
			stack = append(stack, t.Name)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unexpected end element </%s>", qualified(t.Name))
			}
			open := stack[len(stack)-1]
			if open != t.Name {
				return nil, fmt.Errorf("element <%s> closed by </%s>", qualified(open), qualified(t.Name))
			}
			stack = stack[:len(stack)-1]
			if pending {
				out.WriteString("/>")
				pending = false
			} else {
				out.WriteString("</")
				out.WriteString(qualified(t.Name))
				out.WriteByte('>')
			}
			if len(stack) == 0 {
				done = true
			}

		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, errors.New("character data outside root element")
				}
				continue
			}
			flush()
			_, _ = textEscaper.WriteString(&out, string(t))

		case xml.Comment, xml.ProcInst, xml.Directive:
			// dropped
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("unclosed element <%s>", qualified(stack[len(stack)-1]))
	}
	if !done {
		return nil, errNoRoot
	}
	return out.Bytes(), nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"\t", "&#x9;",
	"\n", "&#xA;",
	"\r", "&#xD;",
)

func escapeAttr(w *bytes.Buffer, s string) {
	_, _ = attrEscaper.WriteString(w, s)
}

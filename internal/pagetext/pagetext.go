// Package pagetext reduces a decoded payload to a readable document: title,
// description and body text. HTML is parsed with goquery and queried with
// XPath; other text payloads are converted to UTF-8 and normalized.
package pagetext

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"

	"github.com/GriffinCanCode/pagetools/internal/decode"
)

// Document is the readable form of a page
type Document struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text"`
	MediaType   string `json:"media_type"`
	Charset     string `json:"charset,omitempty"`
	WordCount   int    `json:"word_count"`
}

// Elements never carrying readable text
const noise = "script, style, noscript, template, iframe, svg, nav, header, footer, aside"

var strict = bluemonday.StrictPolicy()

// IsHTML reports whether the media type names an HTML document
func IsHTML(mediaType string) bool {
	lower := strings.ToLower(mediaType)
	return strings.Contains(lower, "text/html") || strings.Contains(lower, "xhtml")
}

// Extract builds a Document from p. Binary payloads are rejected.
func Extract(p decode.Payload) (*Document, error) {
	if p.Charset == "" && !decode.IsText(p.MediaType) && !IsHTML(p.MediaType) {
		return nil, fmt.Errorf("payload of type %q is not text", p.MediaType)
	}

	text, err := p.Text()
	if err != nil {
		return nil, fmt.Errorf("convert %s to utf-8: %w", p.Charset, err)
	}

	doc := &Document{MediaType: p.MediaType, Charset: p.Charset}
	if IsHTML(p.MediaType) {
		if err := extractHTML(doc, text); err != nil {
			return nil, err
		}
	} else {
		doc.Text = Normalize(text)
	}
	doc.WordCount = len(strings.Fields(doc.Text))
	return doc, nil
}

// Text returns the readable text of p: the body text for HTML, the whole
// converted payload otherwise.
func Text(p decode.Payload) (string, error) {
	doc, err := Extract(p)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

func extractHTML(doc *Document, src string) error {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	doc.Title = clean(gq.Find("title").First().Text())
	if root := gq.Nodes; len(root) > 0 {
		if doc.Title == "" {
			doc.Title = metaContent(root[0], "//meta[@property='og:title']")
		}
		doc.Description = metaContent(root[0], "//meta[@name='description']")
		if doc.Description == "" {
			doc.Description = metaContent(root[0], "//meta[@property='og:description']")
		}
	}

	gq.Find(noise).Remove()

	var main *goquery.Selection
	if m := gq.Find("main, article").First(); m.Length() > 0 {
		main = m
	} else if r := gq.Find("[role='main']").First(); r.Length() > 0 {
		main = r
	} else {
		main = gq.Find("body")
	}
	doc.Text = Normalize(blockText(main))
	return nil
}

// blockText joins text of block-level children with spaces so adjacent
// paragraphs do not run together.
func blockText(sel *goquery.Selection) string {
	sel.Find("p, h1, h2, h3, h4, h5, h6, li, td, th, pre, blockquote, br").Each(func(_ int, s *goquery.Selection) {
		s.BeforeHtml(" ")
		s.AfterHtml(" ")
	})
	return sel.Text()
}

func metaContent(root *nethtml.Node, expr string) string {
	node, err := htmlquery.Query(root, expr)
	if err != nil || node == nil {
		return ""
	}
	return clean(htmlquery.SelectAttr(node, "content"))
}

// clean strips any markup and entities from s
func clean(s string) string {
	return Normalize(html.UnescapeString(strict.Sanitize(s)))
}

// Normalize collapses runs of whitespace to one space
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Package markup translates the small neutral markup used in reply bodies
// into what each transport renders: **bold**, _italic_ and ``` fenced
// preformatted blocks.
package markup

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

const fence = "```"

var (
	reBold   = regexp.MustCompile(`\*\*([^*\n]+?)\*\*`)
	reItalic = regexp.MustCompile(`(^|[^\w])_([^_\n]+?)_([^\w]|$)`)

	md = goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps()))
)

// Segment is a run of prose or the content of one fenced block.
type Segment struct {
	Text string
	Pre  bool
}

// Split cuts text on fences. An unclosed fence is kept as prose.
func Split(text string) []Segment {
	var out []Segment
	for {
		start := strings.Index(text, fence)
		if start < 0 {
			break
		}
		rest := text[start+len(fence):]
		body, after, ok := strings.Cut(rest, fence)
		if !ok {
			break
		}
		if start > 0 {
			out = append(out, Segment{Text: text[:start]})
		}
		out = append(out, Segment{Text: strings.Trim(body, "\n"), Pre: true})
		text = after
	}
	if text != "" {
		out = append(out, Segment{Text: text})
	}
	return out
}

// Emphasis rewrites bold and italic spans in prose through the given wrappers.
// Underscores inside words (URLs, identifiers) are left alone.
func Emphasis(text string, bold, italic func(string) string) string {
	text = reBold.ReplaceAllStringFunc(text, func(m string) string {
		return bold(reBold.FindStringSubmatch(m)[1])
	})
	// A match consumes its trailing boundary, so adjacent spans need another pass.
	for range 4 {
		next := reItalic.ReplaceAllStringFunc(text, func(m string) string {
			sub := reItalic.FindStringSubmatch(m)
			return sub[1] + italic(sub[2]) + sub[3]
		})
		if next == text {
			break
		}
		text = next
	}
	return text
}

// Plain drops all markup, keeping block content on its own lines.
func Plain(text string) string {
	var b strings.Builder
	for _, seg := range Split(text) {
		if seg.Pre {
			b.WriteString(seg.Text)
			continue
		}
		b.WriteString(Emphasis(seg.Text, identity, identity))
	}
	return b.String()
}

// Keybase converts to Keybase chat formatting, which uses single asterisks
// for bold and already understands underscores and fences.
func Keybase(text string) string {
	var b strings.Builder
	for _, seg := range Split(text) {
		if seg.Pre {
			b.WriteString(fence + "\n" + seg.Text + "\n" + fence)
			continue
		}
		b.WriteString(reBold.ReplaceAllString(seg.Text, "*$1*"))
	}
	return b.String()
}

// HTML renders text as HTML for clients that accept formatted bodies.
func HTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markup: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func identity(s string) string { return s }

package ruleengine

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	// bareURLRegex finds http(s) URLs in free text.
	bareURLRegex = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"'` + "`" + `]+`)

	// markdownLinkRegex finds [text](url) links in plain-text emails.
	markdownLinkRegex = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)
)

// Candidate is the input under evaluation. It is a value type and never mutated.
type Candidate struct {
	Kind  Kind   `json:"type"`
	Input string `json:"input"`
}

// NewCandidate validates and returns a Candidate.
func NewCandidate(kind Kind, input string) (Candidate, error) {
	c := Candidate{Kind: kind, Input: input}
	if err := c.Validate(); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

// Validate returns a *ValidationError if the candidate cannot be evaluated:
// unknown kind, blank input, or (for URLs) anything other than an absolute http(s) URL.
func (c Candidate) Validate() error {
	if !c.Kind.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("must be %q or %q, got %q", KindURL, KindEmail, c.Kind)}
	}
	if strings.TrimSpace(c.Input) == "" {
		return &ValidationError{Field: "input", Reason: "must not be blank"}
	}
	if c.Kind == KindURL {
		if _, err := parseAbsoluteURL(c.Input); err != nil {
			return &ValidationError{Field: "input", Reason: "invalid URL format: " + err.Error()}
		}
	}
	return nil
}

// Link is a URL found in a candidate together with the visible text that referenced it.
type Link struct {
	Raw  string
	URL  *url.URL
	Text string
}

// Host returns the lowercase hostname without port or trailing dot.
func (l Link) Host() string {
	return strings.TrimSuffix(strings.ToLower(l.URL.Hostname()), ".")
}

// Scheme returns the lowercase scheme.
func (l Link) Scheme() string {
	return strings.ToLower(l.URL.Scheme)
}

// PathAndQuery returns the escaped path followed by "?query" when a query is present.
func (l Link) PathAndQuery() string {
	target := l.URL.EscapedPath()
	if l.URL.RawQuery != "" {
		target += "?" + l.URL.RawQuery
	}
	return target
}

// Links returns every absolute http(s) URL in the candidate.
// A URL candidate yields itself; an email yields anchors, markdown links and bare URLs.
func (c Candidate) Links() []Link {
	switch c.Kind {
	case KindURL:
		u, err := parseAbsoluteURL(c.Input)
		if err != nil {
			return nil
		}
		return []Link{{Raw: strings.TrimSpace(c.Input), URL: u}}
	case KindEmail:
		return extractLinks(c.Input)
	default:
		return nil
	}
}

// Text returns the human-visible text of the candidate.
// HTML markup in emails is stripped; URLs are returned as-is.
func (c Candidate) Text() string {
	if c.Kind != KindEmail {
		return c.Input
	}
	if !strings.Contains(c.Input, "<") {
		return c.Input
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(c.Input))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken:
			if isHiddenTextTag(z) {
				skip++
			}
		case html.EndTagToken:
			if isHiddenTextTag(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHiddenTextTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	return string(name) == "script" || string(name) == "style"
}

// extractLinks scans HTML anchors, markdown links and bare URLs.
func extractLinks(body string) []Link {
	var links []Link
	seen := make(map[string]struct{})
	add := func(raw, text string) {
		raw = trimURLPunctuation(raw)
		key := raw + "\x00" + text
		if _, dup := seen[key]; dup {
			return
		}
		u, err := parseAbsoluteURL(raw)
		if err != nil {
			return
		}
		seen[key] = struct{}{}
		links = append(links, Link{Raw: raw, URL: u, Text: text})
	}

	if strings.Contains(body, "<") {
		for _, a := range scanAnchors(body) {
			add(a.href, a.text)
		}
	}

	for _, m := range markdownLinkRegex.FindAllStringSubmatch(body, -1) {
		add(m[2], strings.TrimSpace(m[1]))
	}

	for _, raw := range bareURLRegex.FindAllString(body, -1) {
		add(raw, "")
	}

	return links
}

type anchor struct {
	href string
	text string
}

// scanAnchors collects <a href> elements and their inner text.
func scanAnchors(body string) []anchor {
	var (
		out     []anchor
		current *anchor
		text    strings.Builder
	)

	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if current != nil {
				current.text = strings.TrimSpace(text.String())
				out = append(out, *current)
			}
			return out
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if strings.EqualFold(string(key), "href") {
					current = &anchor{href: strings.TrimSpace(string(val))}
					text.Reset()
				}
				if !more {
					break
				}
			}
		case html.TextToken:
			if current != nil {
				text.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "a" && current != nil {
				current.text = strings.TrimSpace(text.String())
				out = append(out, *current)
				current = nil
			}
		}
	}
}

// trimURLPunctuation drops sentence punctuation that regex extraction picks up.
func trimURLPunctuation(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), ".,;:!?)]}>")
}

// parseAbsoluteURL accepts only http(s) URLs with a host.
func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("scheme must be http or https")
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("host is required")
	}
	return u, nil
}

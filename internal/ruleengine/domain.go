package ruleengine

import (
	"net/netip"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/unicode/norm"
)

// toASCII converts an internationalized host to its punycode form.
// Hosts that fail IDNA processing are returned lowercased and unchanged.
func toASCII(host string) string {
	host = strings.ToLower(host)
	if converted, err := idna.Lookup.ToASCII(host); err == nil && converted != "" {
		return converted
	}
	return host
}

// toUnicode converts a punycode host to its Unicode form.
func toUnicode(host string) string {
	host = strings.ToLower(host)
	if converted, err := idna.Lookup.ToUnicode(host); err == nil && converted != "" {
		return converted
	}
	return host
}

// registeredDomain returns the eTLD+1 of host (e.g. "paypal.co.uk" for "secure.paypal.co.uk").
// It falls back to the last two labels when the public suffix list cannot decide.
func registeredDomain(host string) string {
	ascii := toASCII(host)
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(ascii); err == nil {
		return strings.ToLower(etld1)
	}
	labels := strings.Split(ascii, ".")
	if len(labels) < 2 {
		return ascii
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// subdomainPart returns the labels of host left of its registered domain, joined by dots.
func subdomainPart(host string) string {
	ascii := toASCII(host)
	registered := registeredDomain(ascii)
	return strings.TrimSuffix(strings.TrimSuffix(ascii, registered), ".")
}

// isIPHost reports whether host is an IP literal, including the dword and hex
// forms that browsers resolve as IPv4 (http://3232235521/, http://0xc0a80001/).
func isIPHost(host string) bool {
	if host == "" {
		return false
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return true
	}
	if strings.HasPrefix(host, "0x") && len(host) > 2 && isAll(host[2:], isHexDigit) {
		return true
	}
	return isAll(host, isDigit)
}

func isAll(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return s != ""
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// hasMixedScript reports whether a Unicode host mixes letters from two or more scripts.
func hasMixedScript(host string) bool {
	scripts := make(map[string]struct{})
	for _, r := range host {
		script := detectScript(r)
		if script == "" {
			continue
		}
		scripts[script] = struct{}{}
		if len(scripts) >= 2 {
			return true
		}
	}
	return false
}

func detectScript(r rune) string {
	switch {
	case unicode.In(r, unicode.Latin):
		return "latin"
	case unicode.In(r, unicode.Cyrillic):
		return "cyrillic"
	case unicode.In(r, unicode.Greek):
		return "greek"
	case unicode.In(r, unicode.Armenian):
		return "armenian"
	case unicode.In(r, unicode.Hiragana, unicode.Katakana):
		return "kana"
	case unicode.In(r, unicode.Han):
		return "han"
	default:
		return ""
	}
}

// homoglyphs maps characters commonly used to spoof Latin letters in domain names.
var homoglyphs = map[rune]rune{
	// Cyrillic
	'а': 'a', 'в': 'b', 'е': 'e', 'ё': 'e', 'һ': 'h', 'і': 'i', 'ј': 'j', 'к': 'k',
	'м': 'm', 'н': 'h', 'о': 'o', 'р': 'p', 'с': 'c', 'т': 't', 'у': 'y', 'х': 'x',
	'ѕ': 's', 'ԁ': 'd', 'ԛ': 'q', 'ԝ': 'w', 'ɡ': 'g',
	// Greek
	'α': 'a', 'β': 'b', 'ε': 'e', 'ι': 'i', 'κ': 'k', 'ν': 'v', 'ο': 'o', 'ρ': 'p',
	'τ': 't', 'υ': 'u', 'χ': 'x',
	// Digits and punctuation that pass as letters
	'0': 'o', '1': 'l', '|': 'l',
	// Armenian
	'օ': 'o', 'ս': 'u', 'զ': 'q',
}

// skeleton reduces s to a canonical form in which visually confusable strings compare equal.
// Diacritics are stripped via NFKD before the homoglyph table is applied.
func skeleton(s string) string {
	decomposed := norm.NFKD.String(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if mapped, ok := homoglyphs[r]; ok {
			r = mapped
		}
		b.WriteRune(r)
	}

	// "rn" renders like "m" in most sans-serif fonts.
	return strings.ReplaceAll(b.String(), "rn", "m")
}

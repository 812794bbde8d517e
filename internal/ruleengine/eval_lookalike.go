package ruleengine

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DefaultBrands is the list of commonly impersonated domains used when a
// LOOKALIKE rule does not name its own.
var DefaultBrands = []string{
	"paypal.com", "google.com", "microsoft.com", "apple.com",
	"amazon.com", "facebook.com", "netflix.com", "bankofamerica.com",
	"chase.com", "wellsfargo.com", "linkedin.com", "dropbox.com",
	"instagram.com", "outlook.com", "office.com", "icloud.com",
}

// LookalikeEvaluator matches hosts that imitate a known brand domain:
// typosquats (paypa1.com), homoglyph variants (pаypal.com with Cyrillic "а")
// and brand-prefixed hosts (paypal.com.account-check.net).
type LookalikeEvaluator struct{}

// lookalikeRuleData defines the JSON schema of a LOOKALIKE rule.
type lookalikeRuleData struct {
	Brands      []string `json:"brands"`
	MaxDistance *int     `json:"max_distance"`
}

// brand is a protected domain split into its registrable label and full domain.
type brand struct {
	domain   string // paypal.com
	label    string // paypal
	skeleton string
}

type compiledLookalike struct {
	brands      []brand
	maxDistance int
}

func compileLookalike(raw json.RawMessage) (any, error) {
	var data lookalikeRuleData
	if err := decodeParams(raw, &data); err != nil {
		return nil, err
	}

	domains := data.Brands
	if domains == nil {
		domains = DefaultBrands
	}
	domains = lowerAll(domains)
	if len(domains) == 0 {
		return nil, fmt.Errorf("brands must not be empty")
	}

	maxDistance := 2
	if data.MaxDistance != nil {
		maxDistance = *data.MaxDistance
	}
	if maxDistance < 0 {
		return nil, fmt.Errorf("max_distance must be >= 0, got %d", maxDistance)
	}

	out := compiledLookalike{maxDistance: maxDistance, brands: make([]brand, 0, len(domains))}
	for _, d := range domains {
		registered := registeredDomain(d)
		label := firstLabel(registered)
		out.brands = append(out.brands, brand{domain: registered, label: label, skeleton: skeleton(label)})
	}
	return out, nil
}

// Eval checks the registered domain of every link against every brand.
func (e *LookalikeEvaluator) Eval(ruleData any, c Candidate) (bool, error) {
	data, ok := ruleData.(compiledLookalike)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected compiledLookalike, got %T", ruleData)
	}

	return anyLink(c, func(l Link) bool {
		host := l.Host()
		if host == "" || isIPHost(host) {
			return false
		}
		return data.imitates(host)
	}), nil
}

func (d compiledLookalike) imitates(host string) bool {
	// Homoglyphs are compared in Unicode form; punycode would hide them.
	unicodeHost := toUnicode(host)
	registered := registeredDomain(host)
	label := firstLabel(toUnicode(registered))

	for _, b := range d.brands {
		// The genuine domain and its subdomains are never lookalikes.
		if registered == b.domain {
			continue
		}

		// 1. Brand domain used as a prefix: paypal.com.evil.net
		if strings.HasPrefix(unicodeHost, b.domain+".") {
			return true
		}

		if label == b.label {
			// Same brand label under a different suffix (paypal.co) is left
			// to the brand's own registrations; not a typosquat.
			continue
		}

		// 2. Homoglyphs: different code points that render like the brand.
		if skeleton(label) == b.skeleton {
			return true
		}

		// 3. Typosquat within edit distance. Very short labels produce noise.
		if utf8.RuneCountInString(label) >= 3 && d.typosquats(label, b.label) {
			return true
		}
	}
	return false
}

// shortBrandLen is the label length at or below which a brand only tolerates
// one edit, and no deletion: cloud is one edit from icloud, case from chase.
const shortBrandLen = 6

func (d compiledLookalike) typosquats(label, brandLabel string) bool {
	limit := d.maxDistance
	if n := utf8.RuneCountInString(brandLabel); n <= shortBrandLen {
		if utf8.RuneCountInString(label) < n {
			return false
		}
		limit = min(limit, 1)
	}
	if limit <= 0 {
		return false
	}
	dist := levenshtein.ComputeDistance(label, brandLabel)
	return dist > 0 && dist <= limit
}

// firstLabel returns the leftmost DNS label of a domain.
func firstLabel(domain string) string {
	if i := strings.IndexByte(domain, '.'); i >= 0 {
		return domain[:i]
	}
	return domain
}

// HomographEvaluator matches internationalized hosts that could be visual
// spoofs: punycode labels or labels mixing letters from several scripts.
type HomographEvaluator struct{}

// Eval ignores ruleData; the strategy has no parameters.
func (e *HomographEvaluator) Eval(_ any, c Candidate) (bool, error) {
	return anyLink(c, func(l Link) bool {
		ascii := toASCII(l.Host())
		for _, label := range strings.Split(ascii, ".") {
			if strings.HasPrefix(label, "xn--") {
				return true
			}
		}
		return hasMixedScript(toUnicode(ascii))
	}), nil
}

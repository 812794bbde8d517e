package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuleSets(t *testing.T) {
	t.Parallel()

	sets := DefaultRuleSets()

	require.Contains(t, sets, KindURL)
	require.Contains(t, sets, KindEmail)
	assert.Equal(t, 8, sets[KindURL].Len())
	assert.Equal(t, 6, sets[KindEmail].Len())
	assert.InDelta(t, 1.35, sets[KindURL].TotalWeight(), 1e-9)
	assert.InDelta(t, 1.3, sets[KindEmail].TotalWeight(), 1e-9)

	r, ok := sets[KindURL].Rule("contains_ip_address")
	require.True(t, ok)
	assert.Equal(t, 0.25, r.Weight)
	assert.Equal(t, RuleTypeIPHost, r.Type)
}

func TestDefaultRuleSets_URLExamples(t *testing.T) {
	t.Parallel()

	sets := DefaultRuleSets()
	e, _ := newTestEngine(t, DefaultScoring())

	tests := []struct {
		name        string
		input       string
		wantMatched []string
		wantPhish   bool
	}{
		{
			name:        "Should not match anything on a genuine brand URL",
			input:       "https://www.paypal.com/signin",
			wantMatched: []string{},
			wantPhish:   false,
		},
		{
			name:        "Should match IP, transport and keyword rules on a raw IP login page",
			input:       "http://192.168.0.1/login",
			wantMatched: []string{"contains_ip_address", "use_of_https", "suspicious_keywords"},
			wantPhish:   false,
		},
		{
			name:        "Should classify a brand-prefixed deep subdomain as phishing",
			input:       "http://paypal.com.secure.account.login.evil.xyz/login",
			wantMatched: []string{"suspicious_subdomains", "use_of_https", "suspicious_keywords", "lookalike_domain"},
			wantPhish:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, err := e.Evaluate(sets[KindURL], Candidate{Kind: KindURL, Input: tt.input})
			require.NoError(t, err)

			matched := []string{}
			for _, o := range v.Matched() {
				matched = append(matched, o.RuleName)
			}
			assert.Equal(t, tt.wantMatched, matched)
			assert.Equal(t, tt.wantPhish, v.IsPhishing, "score=%v", v.Score)
			assert.Len(t, v.RulesTriggered, sets[KindURL].Len())
		})
	}
}

func TestDefaultRuleSets_EmailExamples(t *testing.T) {
	t.Parallel()

	sets := DefaultRuleSets()
	e, _ := newTestEngine(t, DefaultScoring())

	t.Run("Should classify an urgent credential lure as phishing", func(t *testing.T) {
		t.Parallel()

		body := `URGENT: your account will be closed. Please <a href="http://192.168.1.20/paypal/login">www.paypal.com</a> to verify your account.`
		v, err := e.Evaluate(sets[KindEmail], Candidate{Kind: KindEmail, Input: body})
		require.NoError(t, err)

		matched := []string{}
		for _, o := range v.Matched() {
			matched = append(matched, o.RuleName)
		}
		assert.Equal(t, []string{"urgent_wording", "credential_request", "mismatched_link_text", "link_to_ip_address", "insecure_sensitive_link"}, matched)
		assert.True(t, v.IsPhishing)
		assert.InDelta(t, 1.1/1.3, v.Score, 1e-9)
	})

	t.Run("Should not flag an ordinary message", func(t *testing.T) {
		t.Parallel()

		body := "Hi team, the quarterly report is attached. See https://example.com/reports for details."
		v, err := e.Evaluate(sets[KindEmail], Candidate{Kind: KindEmail, Input: body})
		require.NoError(t, err)

		assert.Empty(t, v.Matched())
		assert.False(t, v.IsPhishing)
	})
}

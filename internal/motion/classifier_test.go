package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func anchor(text, href string, sameOrigin bool) Anchor {
	return Anchor{
		Rect:       Rect{X: 100, Y: 100, W: 120, H: 40},
		Text:       text,
		Href:       href,
		SameOrigin: sameOrigin,
	}
}

func TestSafeTarget(t *testing.T) {
	tests := []struct {
		name string
		a    Anchor
		want bool
	}{
		{"allow listed", anchor("Learn more", "/about", true), true},
		{"pricing", anchor("See Pricing", "/pricing", true), true},
		{"book demo", anchor("Book Demo", "/demo", true), true},
		{"deny wins over allow", anchor("Learn more and buy now", "/buy", true), false},
		{"checkout", anchor("Checkout", "/checkout", true), false},
		{"sign in", anchor("Sign in", "/login", true), false},
		{"signin no space", anchor("Signin", "/login", true), false},
		{"subscribe", anchor("Subscribe", "/sub", true), false},
		{"add to cart", anchor("Add to cart", "/cart", true), false},
		{"cross origin denied", anchor("Learn more", "https://other.com/x", false), false},
		{"no allow match", anchor("Random link", "/random", true), false},
		{"deny in href", anchor("Continue", "/checkout/step-2", true), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SafeTarget(tc.a))
		})
	}
}

func TestDeniedTarget(t *testing.T) {
	assert.True(t, DeniedTarget(anchor("Buy now", "/buy", true)))
	assert.True(t, DeniedTarget(anchor("Log in", "/login", true)))
	// Explicit clicks only consult the deny list, so arbitrary text passes.
	assert.False(t, DeniedTarget(anchor("Our story", "/story", true)))
	assert.False(t, DeniedTarget(anchor("Our story", "/story", false)))
}

func TestDeniedTargetChecksAllFields(t *testing.T) {
	a := anchor("Continue", "/next", true)
	a.AriaLabel = "create account"
	assert.True(t, DeniedTarget(a))

	b := anchor("Continue", "/next", true)
	b.Title = "Checkout"
	assert.True(t, DeniedTarget(b))
}

func TestScoreNavAnchor(t *testing.T) {
	preferred := ScoreNavAnchor(anchor("Pricing", "/pricing", true))
	plain := ScoreNavAnchor(anchor("Blog", "/blog", true))
	denied := ScoreNavAnchor(anchor("Sign in", "/login", true))

	assert.Greater(t, preferred, plain)
	assert.Greater(t, plain, 0)
	assert.Equal(t, 0, denied)
}

func TestScoreNavAnchorPrefersSameOrigin(t *testing.T) {
	same := ScoreNavAnchor(anchor("Blog", "/blog", true))
	cross := ScoreNavAnchor(anchor("Blog", "https://other.com/blog", false))
	assert.Greater(t, same, cross)
}

func TestScoreCTAAnchor(t *testing.T) {
	demo := ScoreCTAAnchor(anchor("Book Demo", "/demo", true))
	pricing := ScoreCTAAnchor(anchor("Pricing", "/pricing", true))
	learn := ScoreCTAAnchor(anchor("Learn more", "/about", true))

	assert.Greater(t, demo, pricing)
	assert.Greater(t, pricing, learn)
	assert.Greater(t, learn, 0)

	assert.Equal(t, 0, ScoreCTAAnchor(anchor("Buy now", "/buy", true)))
	assert.Equal(t, 0, ScoreCTAAnchor(anchor("Random", "/r", true)))
	assert.Equal(t, 0, ScoreCTAAnchor(anchor("Learn more", "https://other.com", false)))
}

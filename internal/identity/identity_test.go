package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_GeneratesFallbacks(t *testing.T) {
	u := New(Preference{})

	assert.NotEmpty(t, u.ID)
	assert.NotEmpty(t, u.Name)
	assert.Contains(t, Palette, u.Color)
	assert.Len(t, u.Initials, 2)
}

func TestNew_HonoursPreference(t *testing.T) {
	u := New(Preference{ID: "fixed", Name: "ada lovelace", Color: "#123456"})

	assert.Equal(t, "fixed", u.ID)
	assert.Equal(t, "ada lovelace", u.Name)
	assert.Equal(t, "AL", u.Initials)
	assert.Equal(t, "#123456", u.Color)
}

func TestNew_IDsAreUnique(t *testing.T) {
	assert.NotEqual(t, New(Preference{}).ID, New(Preference{}).ID)
}

func TestInitials(t *testing.T) {
	cases := map[string]string{
		"":                 "?",
		"   ":              "?",
		"otter":            "O",
		"grace brewster h": "GB",
		"éclair zèbre":     "ÉZ",
	}
	for in, want := range cases {
		assert.Equal(t, want, Initials(in), in)
	}
}

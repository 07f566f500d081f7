// Package identity generates the per-session collaborator identity
// (id, display name, initials, colour).
package identity

import (
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"drawboard/internal/protocol"
)

var adjectives = []string{
	"Quiet", "Brave", "Clever", "Gentle", "Swift", "Bright", "Calm", "Lucky",
	"Bold", "Witty", "Merry", "Nimble",
}

var animals = []string{
	"Otter", "Falcon", "Panda", "Lynx", "Heron", "Badger", "Koala", "Fox",
	"Orca", "Wren", "Marten", "Ibex",
}

// Palette 협업자 색상
var Palette = []string{
	"#e03131", "#2f9e44", "#1971c2", "#f08c00", "#9c36b5",
	"#0c8599", "#e8590c", "#6741d9", "#c2255c", "#5c940d",
}

// Preference optionally overrides generated values (e.g. from a stored profile).
type Preference struct {
	ID    string
	Name  string
	Color string
}

// New returns a session identity. Empty preference fields are randomised.
func New(pref Preference) protocol.User {
	u := protocol.User{
		ID:    strings.TrimSpace(pref.ID),
		Name:  strings.TrimSpace(pref.Name),
		Color: strings.TrimSpace(pref.Color),
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Name == "" {
		u.Name = adjectives[rand.IntN(len(adjectives))] + " " + animals[rand.IntN(len(animals))]
	}
	if u.Color == "" {
		u.Color = Palette[rand.IntN(len(Palette))]
	}
	u.Initials = Initials(u.Name)
	return u
}

// Initials returns the upper-cased first letters of the first two words.
func Initials(name string) string {
	var b strings.Builder
	for _, w := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(w)
		if r == utf8.RuneError {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if utf8.RuneCountInString(b.String()) == 2 {
			break
		}
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}

package store

import (
	"errors"
	"testing"
)

func TestTranslateFTSQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"player", `"player"`},
		{"player damage", `"player" "damage"`},
		{"player AND damage", `"player" "damage"`},
		{`"player died"`, `"player died"`},
		{"play*", `"play"*`},
		{"error OR warning", `"error" OR "warning"`},
		{"player NOT respawn", `"player" NOT "respawn"`},
		{"Player_123", `"Player_123"`},
		{"Actor.cpp", `"Actor.cpp"`},
		{`nullptr OR null OR crash`, `"nullptr" OR "null" OR "crash"`},
	}
	for _, c := range cases {
		got, err := TranslateFTSQuery(c.in)
		if err != nil {
			t.Errorf("TranslateFTSQuery(%q) error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("TranslateFTSQuery(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTranslateFTSQueryInvalid(t *testing.T) {
	for _, q := range []string{
		"",
		"   ",
		`"unterminated`,
		"OR",
		"OR player",
		"player OR",
		"NOT player",
		"player OR NOT",
		"player OR OR damage",
		"*",
		"foo*bar",
	} {
		if _, err := TranslateFTSQuery(q); !errors.Is(err, ErrInput) {
			t.Errorf("TranslateFTSQuery(%q) error = %v, want ErrInput", q, err)
		}
	}
}

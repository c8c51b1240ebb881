package subdomain_test

import (
	"testing"

	"github.com/annurdien/cok/subdomain"
)

func TestValidate_Accepts(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Demo", "demo"},
		{"  my-app  ", "my-app"},
		{"a1b2c3", "a1b2c3"},
	}
	for _, c := range cases {
		got, err := subdomain.Validate(c.in)
		if err != nil {
			t.Errorf("Validate(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Validate(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		in   string
		want subdomain.Reason
	}{
		{"ab", subdomain.ReasonTooShort},
		{"ab\x00cd", subdomain.ReasonBadChars},
		{"-leading", subdomain.ReasonBadChars},
		{"trailing-", subdomain.ReasonBadChars},
		{"double--dash", subdomain.ReasonBadChars},
		{"Has_Underscore", subdomain.ReasonBadChars},
		{"www", subdomain.ReasonReserved},
		{"admin", subdomain.ReasonReserved},
		{"fuck", subdomain.ReasonProfane},
	}
	for _, c := range cases {
		_, err := subdomain.Validate(c.in)
		if err == nil {
			t.Errorf("Validate(%q): expected error", c.in)
			continue
		}
		reason, ok := subdomain.ReasonOf(err)
		if !ok || reason != c.want {
			t.Errorf("Validate(%q): got reason %v, want %v", c.in, reason, c.want)
		}
	}
}

func TestValidate_TooLong(t *testing.T) {
	longButValidChars := make([]byte, 64)
	for i := range longButValidChars {
		longButValidChars[i] = 'a'
	}
	_, err := subdomain.Validate(string(longButValidChars))
	reason, ok := subdomain.ReasonOf(err)
	if !ok || reason != subdomain.ReasonTooLong {
		t.Errorf("expected TooLong, got %v (ok=%v)", reason, ok)
	}
}

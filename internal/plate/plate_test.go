package plate

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ab-12-cd", "AB-12-CD"},
		{"  ab 12 cd ", "AB12CD"},
		{"AB.12_CD!", "AB12CD"},
		{"çab-12", "AB-12"},
		{"", ""},
		{"--", "--"},
		{"12-ÄÖ-34", "12--34"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"ab-12-cd", "x y z", "ÅÄÖ-99", "\x00\xff-a", "🚗 ab 1", "AB-12-CD"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestValidateManual(t *testing.T) {
	got, err := ValidateManual(" ab-1 ")
	if err != nil {
		t.Fatalf("ValidateManual: %v", err)
	}
	if got != "AB-1" {
		t.Fatalf("ValidateManual = %q", got)
	}
	if _, err := ValidateManual("a b!"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

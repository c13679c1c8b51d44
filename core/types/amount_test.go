package types

import (
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.6", "600000000000000000"},
		{".5", "500000000000000000"},
		{"12.000000000000000001", "12000000000000000001"},
		{"42wei", "42"},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("parse %q: want %s, got %s", tc.in, tc.want, got)
		}
	}
	for _, bad := range []string{"", "-1", "1.0000000000000000001", "abc", "-3wei", "1.-5"} {
		if _, err := ParseAmount(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	v, _ := ParseAmount("0.985")
	if got := FormatAmount(v); got != "0.985" {
		t.Fatalf("unexpected format %q", got)
	}
	v, _ = ParseAmount("3")
	if got := FormatAmount(v); got != "3" {
		t.Fatalf("unexpected format %q", got)
	}
	if FormatAmount(nil) != "0" {
		t.Fatalf("nil formats as zero")
	}
}

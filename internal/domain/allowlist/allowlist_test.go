package allowlist

import "testing"

func TestIsAllowlistedClosedOverFail(t *testing.T) {
	cases := []*Set{nil, NewSet(), ParseList(""), ParseList("   ")}
	ids := []string{"", "12345678901234567", "not-a-snowflake"}
	for _, set := range cases {
		for _, id := range ids {
			if set.IsAllowlisted(id) {
				t.Fatalf("expected empty set to deny %q", id)
			}
		}
	}
}

func TestIsAllowlistedMembership(t *testing.T) {
	s := NewSet("123456789012345678")
	if !s.IsAllowlisted("123456789012345678") {
		t.Fatal("expected member to be allowlisted")
	}
	if s.IsAllowlisted("987654321098765432") {
		t.Fatal("expected non-member to be denied")
	}
}

func TestIsValidSnowflake(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"12345678901234567", true},  // 17 digits
		{"123456789012345678", true}, // 18 digits
		{"12345678901234567890", true}, // 20 digits
		{"1234567890123456", false},  // 16 digits
		{"123456789012345678901", false}, // 21 digits
		{"", false},
		{"12345678901234567a", false},
		{"abc", false},
	}
	for _, tt := range tests {
		if got := IsValidSnowflake(tt.in); got != tt.want {
			t.Errorf("IsValidSnowflake(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsValidToken(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"MTIzNDU2Nzg5MDEyMzQ1Njc4.GaBcDe.abcDEF123_-xyz", true},
		{"one.two", false},
		{"one.two.three.four", false},
		{"one..three", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidToken(tt.in); got != tt.want {
			t.Errorf("IsValidToken(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseList(t *testing.T) {
	s := ParseList("123456789012345678, 234567890123456789\t345678901234567890")
	if s.Len() != 3 {
		t.Fatalf("expected 3 ids parsed, got %d", s.Len())
	}
}

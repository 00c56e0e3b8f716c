package security

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected a non-empty hash")
	}

	if err := CheckPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("expected the matching password to check out, got %v", err)
	}

	if err := CheckPassword(hash, "wrong password"); err == nil {
		t.Fatalf("expected a mismatched password to fail the check")
	}
}

func TestHashPassword_DifferentHashesEachTime(t *testing.T) {
	a, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	b, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if a == b {
		t.Fatalf("expected bcrypt's random salt to produce distinct hashes for identical input")
	}
}

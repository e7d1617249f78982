package secrets

import (
	"strings"
	"testing"
)

func TestSealOpen(t *testing.T) {
	s, err := NewSealer(Config{Key: "local-dev-passphrase"})
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal("SAVE20")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if strings.Contains(sealed, "SAVE20") {
		t.Fatalf("sealed value leaks plaintext: %q", sealed)
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "SAVE20" {
		t.Errorf("Open = %q, want SAVE20", got)
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	s, _ := NewSealer(Config{Key: strings.Repeat("ab", 32)})

	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	if a == b {
		t.Error("two seals of the same plaintext should differ")
	}
}

func TestOpenPassesThroughPlaintext(t *testing.T) {
	s, _ := NewSealer(Config{Key: "k"})

	got, err := s.Open("legacy-code")
	if err != nil || got != "legacy-code" {
		t.Errorf("Open(plain) = %q, %v", got, err)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	a, _ := NewSealer(Config{Key: "first"})
	b, _ := NewSealer(Config{Key: "second"})

	sealed, _ := a.Seal("secret")
	if _, err := b.Open(sealed); err != ErrDecryptionFailed {
		t.Errorf("Open with wrong key: err = %v, want ErrDecryptionFailed", err)
	}
}

func TestNewSealerRequiresKey(t *testing.T) {
	if _, err := NewSealer(Config{}); err != ErrInvalidKey {
		t.Errorf("err = %v, want ErrInvalidKey", err)
	}
}

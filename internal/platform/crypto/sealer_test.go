package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestSealRoundTrip(t *testing.T) {
	sealer, err := NewSealer(hex.EncodeToString(bytes.Repeat([]byte{7}, 32)))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	sealed, err := sealer.Seal([]byte("medical certificate"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("medical")) {
		t.Fatal("sealed content leaks plaintext")
	}
	plain, err := sealer.Open(sealed)
	if err != nil || string(plain) != "medical certificate" {
		t.Fatalf("unexpected open result %q (%v)", plain, err)
	}

	sealed[len(sealed)-1] ^= 0xff
	if _, err := sealer.Open(sealed); err == nil {
		t.Fatal("expected tampered content to fail")
	}
}

func TestSealerWithoutKeyPassesThrough(t *testing.T) {
	sealer, err := NewSealer("")
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	if sealer.Enabled() {
		t.Fatal("expected disabled sealer")
	}
	out, err := sealer.Seal([]byte("plain"))
	if err != nil || string(out) != "plain" {
		t.Fatalf("unexpected pass-through %q (%v)", out, err)
	}
}

func TestSealerRejectsShortKey(t *testing.T) {
	if _, err := NewSealer("short"); err == nil {
		t.Fatal("expected short key to fail")
	}
}

package compress

import (
	"bytes"
	"testing"
)

func TestGzipRoundTrip(t *testing.T) {
	in := bytes.Repeat([]byte("INVITE sip:bob@example.com SIP/2.0\r\n"), 40)

	z, err := Gzip(in)
	if err != nil {
		t.Fatalf("Gzip: %v", err)
	}
	if len(z) >= len(in) {
		t.Errorf("compressed %d bytes into %d", len(in), len(z))
	}

	out, err := Gunzip(z, 1<<20)
	if err != nil {
		t.Fatalf("Gunzip: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Error("round trip mismatch")
	}
}

func TestGunzipLimit(t *testing.T) {
	z, _ := Gzip(make([]byte, 4096))
	out, err := Gunzip(z, 100)
	if err != nil {
		t.Fatalf("Gunzip: %v", err)
	}
	if len(out) != 100 {
		t.Errorf("len = %d, want 100", len(out))
	}
}

func TestGunzipInvalid(t *testing.T) {
	if _, err := Gunzip([]byte("not gzip"), 10); err == nil {
		t.Error("expected error for invalid input")
	}
}

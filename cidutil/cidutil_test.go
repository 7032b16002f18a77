package cidutil

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

func TestCIDv0MatchesNodeDefaultBlockPut(t *testing.T) {
	id, err := CIDv0([]byte("blorb"))
	if err != nil {
		t.Fatalf("CIDv0: %v", err)
	}
	if got, want := id.String(), "QmPv52ekjS75L4JmHpXVeuJ5uX2ecSfSZo88NSyxwA3rAQ"; got != want {
		t.Fatalf("unexpected CID: got %s want %s", got, want)
	}
}

func TestCIDv1RawMatchesNodeRawBlockPut(t *testing.T) {
	id, err := CIDv1RawSHA256CID([]byte("blorb"))
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	s, err := id.StringOfBase('z')
	if err != nil {
		t.Fatalf("StringOfBase: %v", err)
	}
	if want := "zb2rhYDhWhxyHN6HFAKGvHnLogYfnk9KvzBUZvCg7sYhS22N8"; s != want {
		t.Fatalf("unexpected CID: got %s want %s", s, want)
	}
}

func TestVerify(t *testing.T) {
	data := []byte("hello")
	id, err := CIDv0(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := Verify(id, data); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := Verify(id, []byte("other")); err != ErrMismatch {
		t.Fatalf("Verify mismatch: got %v want %v", err, ErrMismatch)
	}
	if err := Verify(cid.Undef, data); err == nil {
		t.Fatalf("Verify should reject undefined CID")
	}
}

func TestParsePath(t *testing.T) {
	const s = "QmPv52ekjS75L4JmHpXVeuJ5uX2ecSfSZo88NSyxwA3rAQ"
	for _, in := range []string{s, "/ipfs/" + s, "  /ipfs/" + s + " "} {
		id, err := ParsePath(in)
		if err != nil {
			t.Fatalf("ParsePath(%q): %v", in, err)
		}
		if id.String() != s {
			t.Fatalf("ParsePath(%q) = %s", in, id)
		}
	}
	for _, in := range []string{"", "/ipfs/", "   "} {
		if _, err := ParsePath(in); err != ErrEmptyPath {
			t.Fatalf("ParsePath(%q): got %v want ErrEmptyPath", in, err)
		}
	}
	if _, err := ParsePath("not-a-cid"); err == nil {
		t.Fatalf("ParsePath should reject garbage")
	}
}

func TestMultihashName(t *testing.T) {
	if got := MultihashName(multihash.SHA2_256); got != "sha2-256" {
		t.Fatalf("got %q", got)
	}
	if got := MultihashName(0xfffff); got != "" {
		t.Fatalf("expected empty name for unknown code, got %q", got)
	}
}

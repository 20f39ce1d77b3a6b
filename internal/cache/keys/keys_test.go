package keys

import (
	"regexp"
	"testing"

	"github.com/mohammed-shakir/cellar-rack/internal/rack/bincode"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9:_\-]+$`)

func TestLayoutAndBinKeys(t *testing.T) {
	s := NewSpace("cellar")
	if got := s.Layout(5); got != "cellar:v1:layout:5" {
		t.Fatalf("Layout=%q", got)
	}
	if got := s.Bin(bincode.Key{Store: 5, Column: 3, Row: 7}); got != "cellar:v1:bin:5:3:7" {
		t.Fatalf("Bin=%q", got)
	}
}

func TestNewSpace_SanitizesPrefix(t *testing.T) {
	s := NewSpace("  my cellar/prod  ")
	k := s.Layout(1)
	if !keyPattern.MatchString(k) {
		t.Fatalf("key contains disallowed characters: %s", k)
	}
	if k != "my_cellar-prod:v1:layout:1" {
		t.Fatalf("key=%q", k)
	}
	if NewSpace("").Layout(1) != "cellar:v1:layout:1" {
		t.Fatalf("empty prefix must fall back to default")
	}
}

func TestETag_DeterministicAndSensitive(t *testing.T) {
	a := ETag([]byte(`[{"id":5000,"count":3}]`))
	b := ETag([]byte(`[{"id":5000,"count":3}]`))
	c := ETag([]byte(`[{"id":5000,"count":4}]`))
	if a != b {
		t.Fatalf("same payload, different etags: %s %s", a, b)
	}
	if a == c {
		t.Fatalf("different payloads must differ")
	}
	if !regexp.MustCompile(`^"[0-9a-f]{16}"$`).MatchString(a) {
		t.Fatalf("etag format %s", a)
	}
}

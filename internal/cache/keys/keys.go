// Package keys names the cache entries of the rack service.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/bincode"
)

// schema is bumped whenever the cached JSON shape changes.
const schema = "v1"

type Space struct {
	prefix string
}

// NewSpace sanitizes prefix so keys stay within [A-Za-z0-9:_-].
func NewSpace(prefix string) Space {
	p := sanitize(strings.TrimSpace(prefix))
	if p == "" {
		p = "cellar"
	}
	return Space{prefix: p}
}

func (s Space) Layout(store model.StoreID) string {
	return fmt.Sprintf("%s:%s:layout:%d", s.prefix, schema, int(store))
}

func (s Space) Bin(k bincode.Key) string {
	return fmt.Sprintf("%s:%s:bin:%s", s.prefix, schema, k.String())
}

// ETag is a strong validator over a serialized payload.
func ETag(payload []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(payload))
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}

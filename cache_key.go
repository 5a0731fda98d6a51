package apiexec

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// Key identifies one cached read. Its string form starts with the scope and
// then the family so a whole scope or family can be dropped by prefix.
type Key struct {
	Scope    string
	Family   string
	Method   string
	Path     string
	BodyHash string
}

func (k Key) String() string {
	var b strings.Builder
	b.WriteString(familyPrefix(k.Scope, k.Family))
	b.WriteString(k.Method)
	b.WriteByte(' ')
	b.WriteString(k.Path)
	if k.BodyHash != "" {
		b.WriteByte('#')
		b.WriteString(k.BodyHash)
	}
	return b.String()
}

// BuildKey derives the cache key of a read. query is folded into the path in
// its canonical (sorted) encoding. An empty family is derived from path.
func BuildKey(method, path string, query url.Values, body []byte, family string) Key {
	if family == "" {
		family = FamilyOf(path)
	}
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	k := Key{
		Family: family,
		Method: strings.ToUpper(method),
		Path:   path,
	}
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		k.BodyHash = hex.EncodeToString(sum[:8])
	}
	return k
}

// WithScope returns k bound to scope. Entries of different scopes never
// collide, even in a store shared between processes.
func (k Key) WithScope(scope string) Key {
	k.Scope = scope
	return k
}

// Scope names the owner of cached reads: the tenant and a digest of the token
// subject. Raw subjects never reach the store.
func Scope(tenant, subject string) string {
	if subject == "" {
		subject = "anonymous"
	} else {
		sum := sha256.Sum256([]byte(subject))
		subject = hex.EncodeToString(sum[:8])
	}
	return url.QueryEscape(tenant) + ":" + subject
}

var versionSegment = regexp.MustCompile(`^v[0-9]+$`)

// FamilyOf returns the resource family of an API path: its first segment
// after any "api" and version prefix, lowercased. "/api/licencas/42" and
// "/api/v2/licencas?page=2" both belong to "licencas".
func FamilyOf(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, seg := range strings.Split(path, "/") {
		seg = strings.ToLower(strings.TrimSpace(seg))
		if seg == "" || seg == "api" || versionSegment.MatchString(seg) {
			continue
		}
		return seg
	}
	return "root"
}

func scopePrefix(scope string) string {
	if scope == "" {
		return ""
	}
	return scope + "|"
}

func familyPrefix(scope, family string) string {
	return scopePrefix(scope) + family + "|"
}

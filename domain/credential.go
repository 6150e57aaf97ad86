package domain

import (
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ParseCredentials normalizes a raw configuration value into an ordered list
// of API keys. raw may be nil, a string, a string holding a list literal, or
// a list. Non-string and blank elements are dropped; order is preserved.
func ParseCredentials(raw any) []string {
	var candidates []any
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		candidates = decodeListLiteral(v)
	case []string:
		for _, s := range v {
			candidates = append(candidates, s)
		}
	case []any:
		candidates = v
	default:
		return nil
	}

	keys := make([]string, 0, len(candidates))
	for _, c := range candidates {
		s, ok := c.(string)
		if !ok {
			continue
		}
		if k := cleanCredential(s); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// decodeListLiteral accepts `["a", "b"]` as well as `['a', 'b']`. Anything
// that is not a bracketed list of quoted strings and plain numbers or
// booleans, such as `[abc, def]` or a block sequence, is a single credential.
func decodeListLiteral(s string) []any {
	if !strings.HasPrefix(strings.TrimSpace(s), "[") {
		return []any{s}
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil || len(doc.Content) != 1 {
		return []any{s}
	}
	seq := doc.Content[0]
	if seq.Kind != yaml.SequenceNode || seq.Style&yaml.FlowStyle == 0 {
		return []any{s}
	}
	for _, item := range seq.Content {
		if !isLiteralItem(item) {
			return []any{s}
		}
	}

	var list []any
	if err := seq.Decode(&list); err != nil {
		return []any{s}
	}
	return list
}

// isLiteralItem reports whether a list element would be a valid literal on
// its own: strings must be quoted.
func isLiteralItem(n *yaml.Node) bool {
	if n.Kind != yaml.ScalarNode {
		return false
	}
	switch n.ShortTag() {
	case "!!str":
		return n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0
	case "!!int", "!!float", "!!bool", "!!null":
		return true
	}
	return false
}

func cleanCredential(s string) string {
	s = strings.TrimSpace(s)
	s = trimQuote(s, '"')
	s = trimQuote(s, '\'')
	return strings.TrimSpace(s)
}

func trimQuote(s string, q byte) string {
	if len(s) > 0 && s[0] == q {
		s = s[1:]
	}
	if len(s) > 0 && s[len(s)-1] == q {
		s = s[:len(s)-1]
	}
	return s
}

// CredentialPool is an ordered, de-duplicated set of equivalent API keys
// with a shared selection cursor. Safe for concurrent use.
type CredentialPool struct {
	mu     sync.Mutex
	keys   []string
	cursor int
}

func NewCredentialPool(keys []string) (*CredentialPool, error) {
	seen := make(map[string]struct{}, len(keys))
	unique := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	if len(unique) == 0 {
		return nil, ErrConfiguration
	}
	return &CredentialPool{keys: unique}, nil
}

func (p *CredentialPool) Len() int {
	return len(p.keys)
}

// Current returns the selected key and its index. An out-of-range cursor is
// reset to the first key.
func (p *CredentialPool) Current() (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cursor < 0 || p.cursor >= len(p.keys) {
		p.cursor = 0
	}
	return p.cursor, p.keys[p.cursor]
}

// Advance rotates away from index from. When another caller already rotated
// away from it, the cursor is left where it is. Returns the new cursor.
func (p *CredentialPool) Advance(from int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cursor == from {
		p.cursor = (from + 1) % len(p.keys)
	}
	return p.cursor
}

func (p *CredentialPool) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Package cache provides a cache-aside decorator with templated keys, two
// backend capabilities (in-process blocking and remote context-aware), and a
// sorted-set counter for the top-queries read path.
package cache

import (
	"fmt"
	"strings"

	"github.com/medsage/medsage-api/internal/apperr"
)

// KeyTemplate is a format string whose {placeholder} tokens are validated
// against the wrapped function's declared parameter names at construction
// time. A bad template is a configuration error, never a request-time one.
type KeyTemplate struct {
	raw      string
	segments []segment
}

type segment struct {
	literal     string
	placeholder string
}

// ParseKeyTemplate parses raw and checks that every {placeholder} names one
// of params.
func ParseKeyTemplate(raw string, params ...string) (*KeyTemplate, error) {
	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p] = true
	}

	t := &KeyTemplate{raw: raw}
	rest := raw
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if rest != "" {
				t.segments = append(t.segments, segment{literal: rest})
			}
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return nil, apperr.Configuration(fmt.Sprintf("cache key template %q: unterminated placeholder", raw))
		}
		if open > 0 {
			t.segments = append(t.segments, segment{literal: rest[:open]})
		}
		name := rest[open+1 : open+closing]
		if name == "" {
			return nil, apperr.Configuration(fmt.Sprintf("cache key template %q: empty placeholder", raw))
		}
		if !known[name] {
			return nil, apperr.Configuration(fmt.Sprintf("cache key template %q: placeholder %q does not match any parameter", raw, name))
		}
		t.segments = append(t.segments, segment{placeholder: name})
		rest = rest[open+closing+1:]
	}

	return t, nil
}

// Render substitutes bound argument values into the template. Placeholders
// with no bound value render empty.
func (t *KeyTemplate) Render(args map[string]string) string {
	var b strings.Builder
	for _, s := range t.segments {
		if s.placeholder != "" {
			b.WriteString(args[s.placeholder])
			continue
		}
		b.WriteString(s.literal)
	}
	return b.String()
}

func (t *KeyTemplate) String() string {
	return t.raw
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/medsage/medsage-api/internal/apperr"
)

// FetchFunc computes a value from named string arguments. The argument names
// are the ones declared when the wrapper was built, mirroring how the key
// template binds placeholders to parameters.
type FetchFunc[V any] func(ctx context.Context, args map[string]string) (V, error)

// Cached wraps fetch with cache-aside semantics: render the key from the
// bound arguments, return a hit if the backend has one, otherwise invoke
// fetch, store its result with ttl (or the backend default when ttl <= 0),
// and return it.
//
// The backend is selected by capability, not by type hierarchy: it must
// implement either BlockingBackend or ContextBackend. Anything else is a
// configuration error at wrap time.
//
// Backend read/write errors are absorbed: a failing cache degrades to a miss,
// never to a failed request. fetch errors are returned as-is and nothing is
// stored.
func Cached[V any](tmpl *KeyTemplate, backend any, ttl time.Duration, fetch FetchFunc[V]) (FetchFunc[V], error) {
	switch b := backend.(type) {
	case BlockingBackend:
		return func(ctx context.Context, args map[string]string) (V, error) {
			key := tmpl.Render(args)
			if raw, ok := b.Get(key); ok {
				var value V
				if err := json.Unmarshal(raw, &value); err == nil {
					return value, nil
				}
				log.Printf("[Cache] Dropping undecodable entry for key %s", key)
			}

			value, err := fetch(ctx, args)
			if err != nil {
				return value, err
			}
			if raw, err := json.Marshal(value); err == nil {
				b.Set(key, raw, ttl)
			}
			return value, nil
		}, nil

	case ContextBackend:
		return func(ctx context.Context, args map[string]string) (V, error) {
			key := tmpl.Render(args)
			raw, err := b.Get(ctx, key)
			if err != nil {
				log.Printf("[Cache] Get failed for key %s: %v", key, err)
			} else if raw != nil {
				var value V
				if err := json.Unmarshal(raw, &value); err == nil {
					return value, nil
				}
				log.Printf("[Cache] Dropping undecodable entry for key %s", key)
			}

			value, err := fetch(ctx, args)
			if err != nil {
				return value, err
			}
			if raw, err := json.Marshal(value); err == nil {
				if err := b.Set(ctx, key, raw, ttl); err != nil {
					log.Printf("[Cache] Set failed for key %s: %v", key, err)
				}
			}
			return value, nil
		}, nil

	default:
		return nil, apperr.Configuration(fmt.Sprintf("cache backend %T implements neither BlockingBackend nor ContextBackend", backend))
	}
}

package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-inputmethod/layering"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

var ErrNoLayers = errors.New("state: no layers found")

// Ref identifies one persisted snapshot for one settings domain.
type Ref struct {
	Domain string
	Scope  layering.Scope
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one snapshot for a single scope reference.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (snapshot T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error)
}

// Resolver orchestrates scoped loads and saves against a Store.
type Resolver[T any] struct {
	Store Store[T]
}

type Mutator[T any] func(*T) error

func (r Ref) Identifier() (string, error) {
	switch r.Scope.Name {
	case "system":
		return fmt.Sprintf("system/%s", r.Domain), nil
	case "user", "device":
		key := r.Scope.Name + "_id"
		id, _ := r.Scope.Metadata[key].(string)
		if id == "" {
			return "", fmt.Errorf("missing metadata key %q for scope %q", key, r.Scope.Name)
		}
		return fmt.Sprintf("%s/%s/%s", r.Scope.Name, id, r.Domain), nil
	default:
		return "", fmt.Errorf("unsupported scope name %q", r.Scope.Name)
	}
}

func (r Resolver[T]) Resolve(ctx context.Context, domain string, scopes ...layering.Scope) (*layering.Merged[T], error) {
	if err := r.check(domain); err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("state: at least one scope is required")
	}
	layers, err := r.load(ctx, domain, scopes)
	if err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w for domain %q", ErrNoLayers, domain)
	}
	return merge(layers)
}

// ResolveWithDefaults behaves like Resolve but always appends defaults as the
// weakest layer, so it never fails with ErrNoLayers.
func (r Resolver[T]) ResolveWithDefaults(ctx context.Context, domain string, defaults T, scopes ...layering.Scope) (*layering.Merged[T], error) {
	if err := r.check(domain); err != nil {
		return nil, err
	}

	taken := make(map[int]struct{}, len(scopes))
	weakest := 0
	for i, scope := range scopes {
		if scope.Name == "defaults" {
			return nil, fmt.Errorf("state: scope name %q is reserved", "defaults")
		}
		taken[scope.Priority] = struct{}{}
		if i == 0 || scope.Priority < weakest {
			weakest = scope.Priority
		}
	}
	priority := layering.ScopePriorityDefaults
	if len(scopes) > 0 {
		priority = weakest - 1
		for {
			if _, ok := taken[priority]; !ok {
				break
			}
			priority--
		}
	}

	layers, err := r.load(ctx, domain, scopes)
	if err != nil {
		return nil, err
	}
	defaultsScope := layering.NewScope("defaults", priority, layering.WithLabel("Defaults"))
	layers = append(layers, layering.NewLayer(defaultsScope, defaults, ""))
	return merge(layers)
}

// Mutate loads one snapshot, applies fn, validates, then saves. When meta
// carries an ETag it must match the stored one.
func (r Resolver[T]) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator[T]) (T, Meta, error) {
	var zero T
	if err := r.check(ref.Domain); err != nil {
		return zero, Meta{}, err
	}
	if ref.Scope.Name == "" {
		return zero, Meta{}, fmt.Errorf("state: scope name is required")
	}
	if fn == nil {
		return zero, Meta{}, fmt.Errorf("state: mutator is required")
	}

	snapshot, loaded, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return zero, Meta{}, fmt.Errorf("state: load %q for scope %q: %w", ref.Domain, ref.Scope.Name, err)
	}
	if !ok {
		snapshot = zero
		loaded = Meta{}
	}
	if meta.ETag != "" && loaded.ETag != "" && meta.ETag != loaded.ETag {
		return zero, loaded, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loaded.ETag)
	}

	if err := fn(&snapshot); err != nil {
		return zero, loaded, err
	}
	if err := validate(snapshot); err != nil {
		return zero, loaded, err
	}

	saved, err := r.Store.Save(ctx, ref, snapshot, mergeMeta(loaded, meta))
	if err != nil {
		return zero, loaded, fmt.Errorf("state: save %q for scope %q: %w", ref.Domain, ref.Scope.Name, err)
	}
	return snapshot, saved, nil
}

func (r Resolver[T]) check(domain string) error {
	if r.Store == nil {
		return fmt.Errorf("state: store is required")
	}
	if domain == "" {
		return fmt.Errorf("state: domain is required")
	}
	return nil
}

func (r Resolver[T]) load(ctx context.Context, domain string, scopes []layering.Scope) ([]layering.Layer[T], error) {
	layers := make([]layering.Layer[T], 0, len(scopes)+1)
	for _, scope := range scopes {
		snapshot, meta, ok, err := r.Store.Load(ctx, Ref{Domain: domain, Scope: scope})
		if err != nil {
			return nil, fmt.Errorf("state: load %q for scope %q: %w", domain, scope.Name, err)
		}
		if !ok {
			continue
		}
		layers = append(layers, layering.NewLayer(scope, snapshot, meta.SnapshotID))
	}
	return layers, nil
}

func merge[T any](layers []layering.Layer[T]) (*layering.Merged[T], error) {
	stack, err := layering.NewStack(layers...)
	if err != nil {
		return nil, fmt.Errorf("state: stack: %w", err)
	}
	return stack.Merge()
}

func validate[T any](value T) error {
	if v, ok := any(value).(interface{ Validate() error }); ok {
		return v.Validate()
	}
	if v, ok := any(&value).(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

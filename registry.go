package inputmethod

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-inputmethod/internal/hydrate"
)

// PayloadSource supplies raw registry entries, one map per installed method.
type PayloadSource interface {
	Payloads(ctx context.Context) ([]map[string]any, error)
}

// PayloadSourceFunc adapts a function to PayloadSource.
type PayloadSourceFunc func(ctx context.Context) ([]map[string]any, error)

func (f PayloadSourceFunc) Payloads(ctx context.Context) ([]map[string]any, error) {
	return f(ctx)
}

var errMissingID = errors.New("method id is required")

// payloadAliases maps platform field names onto descriptor fields.
var payloadAliases = map[string]string{
	"imeId":         "id",
	"packageName":   "package_owner",
	"isSystem":      "system_provided",
	"hasSettings":   "has_settings_screen",
	"displayName":   "label",
	"subtypeList":   "subtypes",
	"isAuxiliary":   "overrides_implicit",
	"subtypeLocale": "locale",
	"subtypeMode":   "mode",
}

// PayloadRegistry is a Registry that decodes descriptors from a
// PayloadSource. Entries that fail to decode are skipped and logged unless
// the registry is strict.
type PayloadRegistry struct {
	source  PayloadSource
	decoder *hydrate.Decoder[InputMethodDescriptor]
	strict  bool
	logger  Logger
}

// PayloadRegistryOption configures a PayloadRegistry.
type PayloadRegistryOption func(*PayloadRegistry)

// WithStrictPayloads fails the whole query on the first bad entry and
// rejects unknown fields.
func WithStrictPayloads() PayloadRegistryOption {
	return func(r *PayloadRegistry) {
		r.strict = true
	}
}

// WithPayloadLogger reports skipped entries to logger.
func WithPayloadLogger(logger Logger) PayloadRegistryOption {
	return func(r *PayloadRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewPayloadRegistry(source PayloadSource, opts ...PayloadRegistryOption) *PayloadRegistry {
	r := &PayloadRegistry{source: source, logger: noopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	decoderOpts := []hydrate.DecoderOption[InputMethodDescriptor]{
		hydrate.WithPreHook[InputMethodDescriptor](renamePayload),
		hydrate.WithPostHook[InputMethodDescriptor](requireMethodID),
	}
	if r.strict {
		decoderOpts = append(decoderOpts, hydrate.WithStrict[InputMethodDescriptor]())
	}
	r.decoder = hydrate.NewDecoder(decoderOpts...)
	return r
}

// InputMethods implements Registry.
func (r *PayloadRegistry) InputMethods(ctx context.Context) ([]InputMethodDescriptor, error) {
	if r.source == nil {
		return nil, ErrRegistryRequired
	}
	payloads, err := r.source.Payloads(ctx)
	if err != nil {
		return nil, err
	}
	methods := make([]InputMethodDescriptor, 0, len(payloads))
	for i, payload := range payloads {
		method, err := r.decoder.Decode(hydrate.Context{Source: "registry", Index: i}, payload)
		if err != nil {
			if r.strict {
				return nil, fmt.Errorf("inputmethod: registry payload: %w", err)
			}
			r.logger.LogEvent(Event{Kind: EventPayloadRejected, Err: err})
			continue
		}
		methods = append(methods, method)
	}
	return methods, nil
}

func renamePayload(ctx hydrate.Context, payload map[string]any) (map[string]any, error) {
	rename := hydrate.Rename(payloadAliases)
	payload, err := rename(ctx, payload)
	if err != nil {
		return nil, err
	}
	subtypes, ok := payload["subtypes"].([]any)
	if !ok {
		return payload, nil
	}
	for _, entry := range subtypes {
		if subtype, ok := entry.(map[string]any); ok {
			if _, err := rename(ctx, subtype); err != nil {
				return nil, err
			}
		}
	}
	return payload, nil
}

func requireMethodID(_ hydrate.Context, method *InputMethodDescriptor) error {
	if method.ID == "" {
		return errMissingID
	}
	return nil
}

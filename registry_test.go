package inputmethod

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func payloads(entries ...map[string]any) PayloadSource {
	return PayloadSourceFunc(func(context.Context) ([]map[string]any, error) {
		return entries, nil
	})
}

func TestPayloadRegistryDecodesPlatformFields(t *testing.T) {
	var rejected []Event
	registry := NewPayloadRegistry(payloads(
		map[string]any{
			"imeId":       "com.example/.Latin",
			"packageName": "com.example",
			"isSystem":    true,
			"hasSettings": true,
			"displayName": "Latin",
			"subtypeList": []any{
				map[string]any{"subtypeLocale": "en_US", "subtypeMode": "keyboard", "label": "English"},
				map[string]any{"key": "emoji", "mode": "keyboard", "isAuxiliary": true},
			},
		},
		map[string]any{"packageName": "broken"},
		map[string]any{"id": "voice", "system_provided": "yes"},
	), WithPayloadLogger(LoggerFunc(func(e Event) { rejected = append(rejected, e) })))

	catalog := NewCatalog(registry)
	if err := catalog.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	methods := catalog.List()
	if len(methods) != 1 {
		t.Fatalf("expected one decoded method, got %+v", methods)
	}
	latin := methods[0]
	if latin.ID != "com.example/.Latin" || latin.PackageOwner != "com.example" || !latin.SystemProvided || !latin.HasSettingsScreen || latin.Label != "Latin" {
		t.Fatalf("unexpected descriptor %+v", latin)
	}
	if len(latin.Subtypes) != 2 || latin.Subtypes[0].Locale != "en_US" || latin.Subtypes[0].Key == "" {
		t.Fatalf("expected derived subtype key, got %+v", latin.Subtypes)
	}
	if latin.Subtypes[1].Key != "emoji" || !latin.Subtypes[1].OverridesImplicit {
		t.Fatalf("expected explicit key and auxiliary flag, got %+v", latin.Subtypes[1])
	}
	if len(rejected) != 2 || rejected[0].Kind != EventPayloadRejected || !errors.Is(rejected[0].Err, errMissingID) {
		t.Fatalf("expected two rejected payloads, got %+v", rejected)
	}
}

func TestPayloadRegistryStrict(t *testing.T) {
	registry := NewPayloadRegistry(payloads(map[string]any{"id": "a", "color": "blue"}), WithStrictPayloads())
	_, err := registry.InputMethods(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("expected strict decode failure, got %v", err)
	}

	boom := errors.New("unavailable")
	failing := NewPayloadRegistry(PayloadSourceFunc(func(context.Context) ([]map[string]any, error) { return nil, boom }))
	if _, err := failing.InputMethods(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

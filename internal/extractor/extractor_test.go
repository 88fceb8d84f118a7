package extractor

import (
	"context"
	"testing"

	"github.com/foofork/riptide/internal/types"
)

type stubExtractor struct{ name string }

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(context.Context, *types.Response, types.Options) (*types.Document, error) {
	return nil, nil
}

func TestRegistryGetReturnsRegisteredExtractor(t *testing.T) {
	static := &stubExtractor{name: "static"}
	dynamic := &stubExtractor{name: "dynamic"}
	reg := NewRegistry(static, dynamic)

	got, ok := reg.Get("dynamic")
	if !ok || got != Extractor(dynamic) {
		t.Errorf("Get(dynamic) = %v, %v", got, ok)
	}
}

func TestRegistryGetMissingReturnsFalse(t *testing.T) {
	reg := NewRegistry(&stubExtractor{name: "static"})
	if _, ok := reg.Get("stealth"); ok {
		t.Error("Get(stealth) = true, want false for unregistered engine")
	}
}

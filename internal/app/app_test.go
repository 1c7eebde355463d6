package app

import (
	"context"
	"testing"

	"github.com/askcorpus/askcorpus/internal/config"
	"github.com/askcorpus/askcorpus/internal/log"
)

func TestModelName(t *testing.T) {
	cases := []struct {
		provider string
		model    string
		want     string
	}{
		{config.ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{config.ProviderOllama, "llama3.3", "ollama/llama3.3"},
		{config.ProviderOpenAI, "gpt-4o", "openai/gpt-4o"},
		{"", "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
	}
	for _, tc := range cases {
		got := ModelName(&config.Config{Provider: tc.provider, ModelName: tc.model})
		if got != tc.want {
			t.Errorf("ModelName(%s, %s) = %q, want %q", tc.provider, tc.model, got, tc.want)
		}
	}
}

func TestProvideIndex_MemoryBackend(t *testing.T) {
	cfg := &config.Config{
		IndexBackend:       config.IndexBackendMemory,
		EmbeddingDimension: 16,
	}

	idx, pool, cleanup, err := provideIndex(context.Background(), cfg, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if idx == nil {
		t.Fatal("nil index")
	}
	if pool != nil || cleanup != nil {
		t.Error("memory backend must not open a database pool")
	}

	n, err := idx.Count(context.Background())
	if err != nil || n != 0 {
		t.Errorf("fresh index Count = (%d, %v)", n, err)
	}
}

func TestSetup_NilConfig(t *testing.T) {
	if _, err := Setup(context.Background(), nil, log.NewNop()); err == nil {
		t.Error("expected error for nil config")
	}
}

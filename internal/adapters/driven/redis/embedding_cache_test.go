package redis

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven/mocks"
)

func TestCachedEmbedder_MissThenHit(t *testing.T) {
	client, _ := setupTestRedis(t)
	inner := mocks.NewMockEmbedder(4)
	cache := NewCachedEmbedder(inner, client, time.Hour, nil)
	ctx := context.Background()

	first, err := cache.Embed(ctx, []string{"alpha", "beta"}, driven.PurposeDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.Embed(ctx, []string{"alpha", "beta"}, driven.PurposeDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(inner.Calls()) != 1 {
		t.Errorf("expected 1 inner call, got %d", len(inner.Calls()))
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("expected cached vectors to match originals")
	}
	if !reflect.DeepEqual(second[0], inner.Vector("alpha")) {
		t.Error("expected vector for alpha")
	}
}

func TestCachedEmbedder_PartialHitPreservesOrder(t *testing.T) {
	client, _ := setupTestRedis(t)
	inner := mocks.NewMockEmbedder(3)
	cache := NewCachedEmbedder(inner, client, time.Hour, nil)
	ctx := context.Background()

	if _, err := cache.Embed(ctx, []string{"b"}, driven.PurposeDocument); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := cache.Embed(ctx, []string{"a", "b", "c"}, driven.PurposeDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := inner.Calls()
	if !reflect.DeepEqual(calls[1], []string{"a", "c"}) {
		t.Errorf("expected only misses to be embedded, got %v", calls[1])
	}
	for i, text := range []string{"a", "b", "c"} {
		if !reflect.DeepEqual(got[i], inner.Vector(text)) {
			t.Errorf("position %d: wrong vector", i)
		}
	}
}

func TestCachedEmbedder_PurposeSeparatesEntries(t *testing.T) {
	client, _ := setupTestRedis(t)
	inner := mocks.NewMockEmbedder(2)
	cache := NewCachedEmbedder(inner, client, time.Hour, nil)
	ctx := context.Background()

	cache.Embed(ctx, []string{"q"}, driven.PurposeDocument)
	cache.Embed(ctx, []string{"q"}, driven.PurposeQuery)

	if len(inner.Calls()) != 2 {
		t.Errorf("expected document and query to miss separately, got %d calls", len(inner.Calls()))
	}
}

func TestCachedEmbedder_TTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	inner := mocks.NewMockEmbedder(2)
	cache := NewCachedEmbedder(inner, client, time.Minute, nil)
	ctx := context.Background()

	cache.Embed(ctx, []string{"x"}, driven.PurposeDocument)
	key := cache.key("x", driven.PurposeDocument)
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Errorf("expected TTL 1m, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	cache.Embed(ctx, []string{"x"}, driven.PurposeDocument)
	if len(inner.Calls()) != 2 {
		t.Errorf("expected expired entry to be re-embedded, got %d calls", len(inner.Calls()))
	}
}

func TestCachedEmbedder_RedisDownFallsThrough(t *testing.T) {
	client, mr := setupTestRedis(t)
	inner := mocks.NewMockEmbedder(2)
	cache := NewCachedEmbedder(inner, client, time.Hour, nil)
	mr.Close()

	got, err := cache.Embed(context.Background(), []string{"x", "y"}, driven.PurposeDocument)
	if err != nil {
		t.Fatalf("expected fall-through, got %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 vectors, got %d", len(got))
	}
}

func TestCachedEmbedder_InnerErrorNotCached(t *testing.T) {
	client, mr := setupTestRedis(t)
	inner := mocks.NewMockEmbedder(2)
	inner.FailWith(errors.New("boom"))
	cache := NewCachedEmbedder(inner, client, time.Hour, nil)

	_, err := cache.Embed(context.Background(), []string{"x"}, driven.PurposeDocument)
	if err == nil {
		t.Fatal("expected inner error")
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("expected nothing cached, got %v", mr.Keys())
	}
}

func TestCachedEmbedder_IgnoresWrongSizedEntries(t *testing.T) {
	client, mr := setupTestRedis(t)
	inner := mocks.NewMockEmbedder(2)
	cache := NewCachedEmbedder(inner, client, time.Hour, nil)

	mr.Set(cache.key("x", driven.PurposeDocument), "abc")

	got, err := cache.Embed(context.Background(), []string{"x"}, driven.PurposeDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.Calls()) != 1 || len(got[0]) != 2 {
		t.Error("expected corrupt entry to be treated as a miss")
	}
}

func TestCachedEmbedder_MalformedVectorsNotCached(t *testing.T) {
	client, mr := setupTestRedis(t)
	inner := mocks.NewMockEmbedder(2)
	inner.EmbedFn = func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			switch text {
			case "nan":
				out[i] = []float32{float32(math.NaN()), 1}
			case "short":
				out[i] = []float32{1}
			default:
				out[i] = inner.Vector(text)
			}
		}
		return out, nil
	}
	cache := NewCachedEmbedder(inner, client, time.Hour, nil)

	got, err := cache.Embed(context.Background(), []string{"good", "nan", "short"}, driven.PurposeDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || len(got[2]) != 1 {
		t.Error("expected vectors to be returned unchanged for the caller to validate")
	}
	if !mr.Exists(cache.key("good", driven.PurposeDocument)) {
		t.Error("expected valid vector to be cached")
	}
	for _, text := range []string{"nan", "short"} {
		if mr.Exists(cache.key(text, driven.PurposeDocument)) {
			t.Errorf("expected malformed vector for %q not to be cached", text)
		}
	}
}

func TestCachedEmbedder_IgnoresCachedNaN(t *testing.T) {
	client, mr := setupTestRedis(t)
	inner := mocks.NewMockEmbedder(2)
	cache := NewCachedEmbedder(inner, client, time.Hour, nil)

	mr.Set(cache.key("x", driven.PurposeDocument), string(encodeVector([]float32{float32(math.NaN()), 1})))

	got, err := cache.Embed(context.Background(), []string{"x"}, driven.PurposeDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.Calls()) != 1 || !reflect.DeepEqual(got[0], inner.Vector("x")) {
		t.Error("expected NaN entry to be treated as a miss")
	}
}

func TestCachedEmbedder_Delegates(t *testing.T) {
	client, _ := setupTestRedis(t)
	inner := mocks.NewMockEmbedder(7)
	inner.SetModel("m-1")
	cache := NewCachedEmbedder(inner, client, 0, nil)

	if cache.Dimensions() != 7 || cache.Model() != "m-1" {
		t.Error("expected dimensions and model from inner embedder")
	}
	if cache.ttl != DefaultEmbeddingTTL {
		t.Errorf("expected default TTL, got %v", cache.ttl)
	}
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	got, ok := decodeVector(string(encodeVector(v)), 3)
	if !ok || !reflect.DeepEqual(got, v) {
		t.Errorf("expected %v, got %v", v, got)
	}
	if _, ok := decodeVector(string(encodeVector(v)), 4); ok {
		t.Error("expected size mismatch to fail")
	}
}

package sources

import (
	"context"
	"strings"
	"testing"

	"github.com/atheneum-app/atheneum/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	configs := NewConfigStore(mem, nil)
	return NewRegistry(configs, nil), mem
}

func TestRegister(t *testing.T) {
	t.Run("duplicate id is a warning, not an error", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		first := NewFakeFetcher("alpha", 5)
		second := NewFakeFetcher("alpha", 5)

		if err := r.Register(first); err != nil {
			t.Fatalf("first Register: %v", err)
		}
		if err := r.Register(second); err != nil {
			t.Fatalf("duplicate Register should not error, got %v", err)
		}

		got, _ := r.Get("alpha")
		if got != first {
			t.Error("duplicate registration replaced the original fetcher")
		}
	})

	t.Run("nil fetcher rejected", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		if err := r.Register(nil); err == nil {
			t.Fatal("expected error for nil fetcher")
		}
	})

	t.Run("panicking identity aborts registration with cause", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		err := r.Register(panickyFetcher{})
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "identity probe panicked") {
			t.Errorf("error %q does not record the probe panic", err)
		}
	})
}

func TestRegisterAdapterCapabilityCheck(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.RegisterAdapter(struct{ X int }{})
	if err == nil {
		t.Fatal("expected capability error")
	}
	// The rejection must name the specific missing methods.
	for _, want := range []string{"SourceID", "Metadata", "FetchPage", "ParseRecord", "DownloadURL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name missing capability %s", err, want)
		}
	}

	if err := r.RegisterAdapter(NewFakeFetcher("beta", 1)); err != nil {
		t.Fatalf("complete adapter rejected: %v", err)
	}
}

func TestLoadConfigurationsProvisionsDefaults(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestRegistry(t)

	if err := r.Register(NewFakeFetcher("newsource", 1)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	legacy := NewFakeFetcher(DefaultSourceID, 1)
	if err := r.Register(legacy); err != nil {
		t.Fatalf("Register legacy: %v", err)
	}

	if err := r.LoadConfigurations(ctx); err != nil {
		t.Fatalf("LoadConfigurations: %v", err)
	}

	fresh := mem.Configs["newsource"]
	if fresh == nil {
		t.Fatal("no default configuration provisioned for newsource")
	}
	if fresh.Enabled || fresh.Priority != DefaultPriority {
		t.Errorf("new source defaults = enabled=%v priority=%d, want disabled/100",
			fresh.Enabled, fresh.Priority)
	}

	legacyCfg := mem.Configs[DefaultSourceID]
	if legacyCfg == nil || !legacyCfg.Enabled || legacyCfg.Priority != 1 {
		t.Errorf("legacy default source config = %+v, want enabled/priority 1", legacyCfg)
	}

	t.Run("idempotent", func(t *testing.T) {
		fresh.Priority = 7 // operator tuned it
		mem.Configs["newsource"] = fresh
		if err := r.LoadConfigurations(ctx); err != nil {
			t.Fatalf("second LoadConfigurations: %v", err)
		}
		if mem.Configs["newsource"].Priority != 7 {
			t.Error("reprovisioning clobbered an existing configuration")
		}
	})
}

func TestEnabledFetchersOrdering(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestRegistry(t)

	for _, id := range []string{"gamma", "alpha", "beta", "delta"} {
		if err := r.Register(NewFakeFetcher(id, 1)); err != nil {
			t.Fatalf("Register %s: %v", id, err)
		}
	}

	save := func(id string, enabled bool, priority int) {
		t.Helper()
		err := mem.SaveSourceConfiguration(ctx, &Configuration{
			SourceID: id, Enabled: enabled, Priority: priority,
			RateLimitMS: 10, BatchSize: 5,
		})
		if err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	save("gamma", true, 2)
	save("alpha", true, 1)
	save("beta", true, 2)
	save("delta", false, 0) // disabled sources never appear

	active, err := r.EnabledFetchers(ctx)
	if err != nil {
		t.Fatalf("EnabledFetchers: %v", err)
	}

	var order []string
	for _, a := range active {
		order = append(order, a.Fetcher.SourceID())
	}
	want := []string{"alpha", "beta", "gamma"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// panickyFetcher satisfies Fetcher but panics on identity lookup.
type panickyFetcher struct{}

func (panickyFetcher) SourceID() string         { panic("identity unavailable") }
func (panickyFetcher) Metadata() SourceMetadata { panic("metadata unavailable") }
func (panickyFetcher) FetchPage(context.Context, FetchOptions) (*Page, error) {
	return nil, nil
}
func (panickyFetcher) ParseRecord([]byte) (map[string]any, error) { return nil, nil }
func (panickyFetcher) DownloadURL(string, string) (string, error) { return "", nil }

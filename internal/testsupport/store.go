package testsupport

import (
	"testing"

	"htrprep/internal/catalog"
	"htrprep/internal/config"
)

// MustOpenCatalog opens the run catalog described by cfg and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

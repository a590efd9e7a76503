package registry_test

import (
	"testing"

	"github.com/dmitrymomot/sessionkit/pkg/registry"
	"github.com/dmitrymomot/sessionkit/pkg/registry/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) registry.Store { return registry.NewMemoryStore() })
}

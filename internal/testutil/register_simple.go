package testutil

import (
	"github.com/vk/foldrun/internal/engine"
)

// SimpleModule registers an arbitrary set of prebuilt bundles, letting tests
// inject stub engines next to (or instead of) the real ones.
type SimpleModule struct {
	Bundles map[string]*engine.Bundle
}

// Register implements engine.Module.
func (m *SimpleModule) Register(r *engine.Registry) {
	for key, b := range m.Bundles {
		r.Register(key, b)
	}
}

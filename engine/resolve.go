package engine

import (
	"github.com/c360studio/semguard/resolver"
)

// ResolveResult is the flattened architecture for one id, independent of
// any file.
type ResolveResult struct {
	*resolver.Flattened
	RegistryChecksum string `json:"registry_checksum"`
}

// ResolveArch flattens id against the current registry snapshot, applying
// inline mixins after the leaf.
func (e *Engine) ResolveArch(id string, inlineMixins ...string) (*ResolveResult, error) {
	reg := e.holder.Load()
	flat, err := resolver.ResolveWith(reg, id, inlineMixins)
	if err != nil {
		return nil, err
	}
	return &ResolveResult{Flattened: flat, RegistryChecksum: reg.Checksum()}, nil
}

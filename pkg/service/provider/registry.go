package provider

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
)

// Registry maps provider kinds to their adapters. Adding a calendar kind
// means registering one more adapter; nothing downstream changes.
type Registry struct {
	adapters map[types.ProviderKind]interfaces.ProviderAdapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[types.ProviderKind]interfaces.ProviderAdapter),
	}
}

func (r *Registry) Register(kind types.ProviderKind, adapter interfaces.ProviderAdapter) {
	r.adapters[kind] = adapter
}

func (r *Registry) Get(kind types.ProviderKind) (interfaces.ProviderAdapter, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, goerr.New("no adapter for provider kind",
			goerr.V("kind", kind), goerr.T(types.ErrTagValidation))
	}
	return adapter, nil
}

// Authorizer returns the OAuth surface of an adapter, or an error for kinds
// that do not authorize (ICS).
func (r *Registry) Authorizer(kind types.ProviderKind) (interfaces.Authorizer, error) {
	adapter, err := r.Get(kind)
	if err != nil {
		return nil, err
	}
	az, ok := adapter.(interfaces.Authorizer)
	if !ok {
		return nil, goerr.New("provider kind does not use OAuth",
			goerr.V("kind", kind), goerr.T(types.ErrTagValidation))
	}
	return az, nil
}

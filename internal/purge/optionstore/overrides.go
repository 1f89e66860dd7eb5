package optionstore

import (
	"context"
)

// overrideStore answers Get from a fixed map before consulting the wrapped store.
// Writes always go to the wrapped store.
type overrideStore struct {
	Store
	overrides map[string]string
}

// WithOverrides wraps store so that non-empty values in overrides win on Get.
func WithOverrides(store Store, overrides map[string]string) Store {
	kept := make(map[string]string, len(overrides))
	for k, v := range overrides {
		if v != "" {
			kept[k] = v
		}
	}
	return &overrideStore{Store: store, overrides: kept}
}

func (o *overrideStore) Get(ctx context.Context, name string) (string, bool, error) {
	if v, ok := o.overrides[name]; ok {
		return v, true, nil
	}
	return o.Store.Get(ctx, name)
}

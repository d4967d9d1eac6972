package session

import "sync"

// Models holds the selected model and maps model ids to their provider.
type Models struct {
	providers       map[string]string
	selected        string
	defaultProvider string
	mu              sync.RWMutex
}

// NewModels creates a catalog. providers maps model id to provider id;
// defaultProvider is used for models it does not list.
func NewModels(selected, defaultProvider string, providers map[string]string) *Models {
	cp := make(map[string]string, len(providers))
	for k, v := range providers {
		cp[k] = v
	}
	return &Models{providers: cp, selected: selected, defaultProvider: defaultProvider}
}

// Selected returns the selected model id.
func (m *Models) Selected() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selected
}

// Select changes the selected model.
func (m *Models) Select(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = model
}

// ProviderFor returns the provider serving model.
func (m *Models) ProviderFor(model string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.providers[model]; ok && p != "" {
		return p
	}
	return m.defaultProvider
}

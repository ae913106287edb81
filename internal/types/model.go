package types

import "strings"

// ModelRef identifies a model on a provider.
type ModelRef struct {
	ProviderID string `json:"providerID,omitempty"`
	ModelID    string `json:"modelID"`
}

func (m ModelRef) IsZero() bool {
	return strings.TrimSpace(m.ModelID) == ""
}

func (m ModelRef) String() string {
	if m.IsZero() {
		return ""
	}
	if m.ProviderID == "" {
		return m.ModelID
	}
	return m.ProviderID + "/" + m.ModelID
}

// ParseModelRef splits "provider/model". Everything after the first slash is
// the model id, so "openrouter/google/gemini" keeps its vendor prefix.
func ParseModelRef(raw string) ModelRef {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ModelRef{}
	}
	provider, model, ok := strings.Cut(raw, "/")
	if !ok {
		return ModelRef{ModelID: raw}
	}
	provider = strings.TrimSpace(provider)
	model = strings.TrimSpace(model)
	if provider == "" || model == "" {
		return ModelRef{ModelID: raw}
	}
	return ModelRef{ProviderID: provider, ModelID: model}
}

// ProviderCatalog is the set of models the server can route to.
type ProviderCatalog struct {
	Models  []ModelRef
	Default ModelRef
}

func (c ProviderCatalog) Contains(ref ModelRef) bool {
	if ref.IsZero() {
		return false
	}
	for _, model := range c.Models {
		if model.ModelID != ref.ModelID {
			continue
		}
		if ref.ProviderID == "" || model.ProviderID == ref.ProviderID {
			return true
		}
	}
	return false
}

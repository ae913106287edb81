package opencode

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"buildchat/internal/types"
)

// Providers returns the model catalog. Results are cached briefly since
// every session switch consults it.
func (c *Client) Providers(ctx context.Context) (types.ProviderCatalog, error) {
	c.catalogMu.RLock()
	if c.catalog != nil && time.Since(c.catalogFetchedAt) < providerCatalogTTL {
		catalog := cloneCatalog(*c.catalog)
		c.catalogMu.RUnlock()
		return catalog, nil
	}
	c.catalogMu.RUnlock()

	var payload struct {
		Providers []map[string]any `json:"providers"`
		Default   map[string]any   `json:"default"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/config/providers", nil, &payload); err != nil {
		return types.ProviderCatalog{}, err
	}
	catalog := parseProviderCatalog(payload.Providers, payload.Default)

	c.catalogMu.Lock()
	cached := cloneCatalog(catalog)
	c.catalog = &cached
	c.catalogFetchedAt = time.Now()
	c.catalogMu.Unlock()
	return catalog, nil
}

func cloneCatalog(src types.ProviderCatalog) types.ProviderCatalog {
	out := types.ProviderCatalog{Default: src.Default}
	out.Models = append([]types.ModelRef(nil), src.Models...)
	return out
}

func parseProviderCatalog(providers []map[string]any, defaults map[string]any) types.ProviderCatalog {
	var out types.ProviderCatalog
	seen := map[types.ModelRef]struct{}{}
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		providerID := strings.TrimSpace(asString(provider["id"]))
		if providerID == "" {
			providerID = strings.TrimSpace(asString(provider["providerID"]))
		}
		if providerID == "" {
			continue
		}
		for _, entry := range modelEntries(provider["models"]) {
			modelID := rawModelID(entry)
			if modelID == "" {
				continue
			}
			ref := types.ModelRef{ProviderID: providerID, ModelID: strings.TrimPrefix(modelID, providerID+"/")}
			if _, exists := seen[ref]; exists {
				continue
			}
			seen[ref] = struct{}{}
			out.Models = append(out.Models, ref)
		}
		if out.Default.IsZero() {
			if value := strings.TrimSpace(asString(defaults[providerID])); value != "" {
				out.Default = types.ModelRef{ProviderID: providerID, ModelID: strings.TrimPrefix(value, providerID+"/")}
			}
		}
	}
	if !out.Default.IsZero() {
		sort.SliceStable(out.Models, func(i, j int) bool {
			return out.Models[i] == out.Default && out.Models[j] != out.Default
		})
	}
	return out
}

func rawModelID(entry any) string {
	switch value := entry.(type) {
	case string:
		return strings.TrimSpace(value)
	case map[string]any:
		modelID := strings.TrimSpace(asString(value["id"]))
		if modelID == "" {
			modelID = strings.TrimSpace(asString(value["modelID"]))
		}
		return modelID
	default:
		return ""
	}
}

// modelEntries accepts models as a list or as a map keyed by model id.
func modelEntries(raw any) []any {
	switch typed := raw.(type) {
	case []any:
		return typed
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, key := range keys {
			entry := typed[key]
			if mapped, ok := entry.(map[string]any); ok && rawModelID(mapped) != "" {
				out = append(out, mapped)
				continue
			}
			if modelID := strings.TrimSpace(asString(entry)); modelID != "" {
				out = append(out, modelID)
				continue
			}
			out = append(out, key)
		}
		return out
	default:
		return nil
	}
}

func asString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

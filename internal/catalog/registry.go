// Package catalog holds the read-only scene template and style registries.
// Both are populated once at process start and never mutated afterwards; a
// runtime change requires a full reload of the process.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"server/internal/domain"
)

// Registry is the process-wide template/style lookup. Safe for concurrent
// reads without synchronization because it is immutable after New.
type Registry struct {
	templates map[string]domain.SceneTemplate
	styles    map[string]domain.StyleDefinition
}

// New builds a registry from template and style definitions, rejecting
// duplicates and templates without a prompt.
func New(templates []domain.SceneTemplate, styles []domain.StyleDefinition) (*Registry, error) {
	r := &Registry{
		templates: make(map[string]domain.SceneTemplate, len(templates)),
		styles:    make(map[string]domain.StyleDefinition, len(styles)),
	}
	for _, tpl := range templates {
		if tpl.ID == "" || tpl.Prompt == "" {
			return nil, fmt.Errorf("catalog: template %q missing id or prompt", tpl.ID)
		}
		if _, ok := r.templates[tpl.ID]; ok {
			return nil, fmt.Errorf("catalog: duplicate template %q", tpl.ID)
		}
		if tpl.InjectionLevel == "" {
			tpl.InjectionLevel = domain.InjectionNone
		}
		if tpl.AspectRatio == "" {
			tpl.AspectRatio = "1:1"
		}
		r.templates[tpl.ID] = tpl
	}
	for _, style := range styles {
		if style.ID == "" {
			return nil, fmt.Errorf("catalog: style missing id")
		}
		if _, ok := r.styles[style.ID]; ok {
			return nil, fmt.Errorf("catalog: duplicate style %q", style.ID)
		}
		r.styles[style.ID] = style
	}
	return r, nil
}

type catalogFile struct {
	Templates []domain.SceneTemplate   `json:"templates"`
	Styles    []domain.StyleDefinition `json:"styles"`
}

// LoadFile reads a JSON catalog from disk.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var file catalogFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return New(file.Templates, file.Styles)
}

// Template resolves a scene template for a product type. A missing template,
// or one registered under a different product type, is a deployment bug.
func (r *Registry) Template(productType, templateID string) (domain.SceneTemplate, error) {
	tpl, ok := r.templates[templateID]
	if !ok {
		return domain.SceneTemplate{}, domain.NewConfigurationError("scene template %q not found", templateID)
	}
	if productType != "" && tpl.ProductType != "" && tpl.ProductType != productType {
		return domain.SceneTemplate{}, domain.NewConfigurationError("scene template %q belongs to product type %q, not %q", templateID, tpl.ProductType, productType)
	}
	return tpl, nil
}

// Style resolves a style definition by id.
func (r *Registry) Style(styleID string) (domain.StyleDefinition, error) {
	style, ok := r.styles[styleID]
	if !ok {
		return domain.StyleDefinition{}, domain.NewConfigurationError("style %q not found", styleID)
	}
	return style, nil
}

// Templates lists templates for a product type (all when empty), sorted by id.
func (r *Registry) Templates(productType string) []domain.SceneTemplate {
	out := make([]domain.SceneTemplate, 0, len(r.templates))
	for _, tpl := range r.templates {
		if productType == "" || tpl.ProductType == productType {
			out = append(out, tpl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Styles lists every registered style, sorted by id.
func (r *Registry) Styles() []domain.StyleDefinition {
	out := make([]domain.StyleDefinition, 0, len(r.styles))
	for _, style := range r.styles {
		out = append(out, style)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

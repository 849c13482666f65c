package handlers

import (
	"net/http"

	"server/internal/prompt"
)

type templateView struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	ProductType         string `json:"product_type"`
	AspectRatio         string `json:"aspect_ratio"`
	SubCategory         string `json:"sub_category,omitempty"`
	RecommendedProvider string `json:"recommended_provider,omitempty"`
}

type styleView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListTemplates returns the scene templates, optionally filtered by
// product_type. Prompt text stays server-side.
func (a *App) ListTemplates(w http.ResponseWriter, r *http.Request) {
	productType := r.URL.Query().Get("product_type")
	templates := a.Catalog.Templates(productType)
	out := make([]templateView, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, templateView{
			ID:                  tpl.ID,
			Name:                prompt.HumanizeID(tpl.ID),
			ProductType:         tpl.ProductType,
			AspectRatio:         tpl.AspectRatio,
			SubCategory:         tpl.SubCategory,
			RecommendedProvider: tpl.RecommendedProvider,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"templates": out})
}

// ListStyles returns the style vocabulary.
func (a *App) ListStyles(w http.ResponseWriter, r *http.Request) {
	styles := a.Catalog.Styles()
	out := make([]styleView, 0, len(styles))
	for _, style := range styles {
		name := style.Name
		if name == "" {
			name = prompt.HumanizeID(style.ID)
		}
		out = append(out, styleView{ID: style.ID, Name: name})
	}
	a.json(w, http.StatusOK, map[string]any{"styles": out})
}

package domain

import "fmt"

// InjectionLevel controls how strongly a style's text fragments are blended
// into a scene template's prompt.
type InjectionLevel string

const (
	InjectionNone  InjectionLevel = "none"
	InjectionLight InjectionLevel = "light"
	InjectionFull  InjectionLevel = "full"
)

// ParseInjectionLevel validates a user-supplied injection level string.
func ParseInjectionLevel(s string) (InjectionLevel, error) {
	switch InjectionLevel(s) {
	case InjectionNone, InjectionLight, InjectionFull:
		return InjectionLevel(s), nil
	}
	return "", &ValidationError{Field: "injection_level", Reason: fmt.Sprintf("must be one of none, light, full; got %q", s)}
}

// SceneTemplate is immutable configuration describing one scene. Loaded once
// at process start into a read-only registry and never mutated at runtime.
type SceneTemplate struct {
	ID                  string         `json:"id"`
	ProductType         string         `json:"product_type"`
	Prompt              string         `json:"prompt"`
	NegativePrompt      string         `json:"negative_prompt"`
	AspectRatio         string         `json:"aspect_ratio"`
	RecommendedProvider string         `json:"recommended_provider"`
	InjectionLevel      InjectionLevel `json:"injection_level"`
	SubCategory         string         `json:"sub_category"`
}

// StyleFragment is the prefix/suffix pair a style contributes at one level.
type StyleFragment struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

// StyleDefinition is immutable configuration pairing text fragments with
// injection levels. Styles never inject negative prompts.
type StyleDefinition struct {
	ID        string                           `json:"id"`
	Name      string                           `json:"name"`
	Fragments map[InjectionLevel]StyleFragment `json:"fragments"`
}

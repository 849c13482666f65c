// Package prompt composes the final prompt text sent to a generation
// provider from a scene template and a style definition.
package prompt

import (
	"server/internal/domain"
)

// Assembly is the provider-ready output of prompt composition.
type Assembly struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
}

// Assemble combines a template with a style at the given injection level.
// An explicit override always wins; the template's own level is only a
// default. Styles never contribute negative prompts. Pure function: safe to
// call concurrently.
func Assemble(tpl domain.SceneTemplate, style domain.StyleDefinition, override domain.InjectionLevel) (Assembly, error) {
	level := tpl.InjectionLevel
	if override != "" {
		level = override
	}

	switch level {
	case domain.InjectionNone:
		return Assembly{
			Prompt:         tpl.Prompt,
			NegativePrompt: tpl.NegativePrompt,
			AspectRatio:    tpl.AspectRatio,
		}, nil
	case domain.InjectionLight, domain.InjectionFull:
		frag, ok := style.Fragments[level]
		if !ok {
			return Assembly{}, domain.NewConfigurationError("style %q has no fragments for injection level %q", style.ID, level)
		}
		return Assembly{
			Prompt:         frag.Prefix + tpl.Prompt + frag.Suffix,
			NegativePrompt: tpl.NegativePrompt,
			AspectRatio:    tpl.AspectRatio,
		}, nil
	default:
		return Assembly{}, domain.NewConfigurationError("template %q has unknown injection level %q", tpl.ID, level)
	}
}

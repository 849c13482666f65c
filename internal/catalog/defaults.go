package catalog

import "server/internal/domain"

// Default returns the built-in catalog used when no catalog file is
// configured. Scene and style vocabulary follows the product photography
// presets shipped with the frontend.
func Default() *Registry {
	r, err := New(defaultTemplates, defaultStyles)
	if err != nil {
		panic(err)
	}
	return r
}

var defaultTemplates = []domain.SceneTemplate{
	{
		ID:             "studio_white",
		ProductType:    "food",
		Prompt:         "professional product photo on a seamless white studio background, soft diffused lighting, sharp focus",
		NegativePrompt: "blurry, watermark, text, low quality",
		AspectRatio:    "1:1",
		InjectionLevel: domain.InjectionLight,
		SubCategory:    "studio",
	},
	{
		ID:             "marble_counter",
		ProductType:    "food",
		Prompt:         "product photo on a polished marble countertop, natural window light from the left, shallow depth of field",
		NegativePrompt: "blurry, watermark, cluttered background",
		AspectRatio:    "4:3",
		InjectionLevel: domain.InjectionLight,
		SubCategory:    "surface",
	},
	{
		ID:                  "rustic_wood",
		ProductType:         "food",
		Prompt:              "product photo on a rustic wooden table, warm tones, scattered ingredients around the product",
		NegativePrompt:      "blurry, watermark, plastic look",
		AspectRatio:         "4:3",
		RecommendedProvider: "gemini",
		InjectionLevel:      domain.InjectionFull,
		SubCategory:         "surface",
	},
	{
		ID:             "cafe_table",
		ProductType:    "food",
		Prompt:         "product photo on a cafe table, blurred coffee shop interior in the background, morning light",
		NegativePrompt: "blurry, watermark, crowds",
		AspectRatio:    "3:4",
		InjectionLevel: domain.InjectionLight,
		SubCategory:    "lifestyle",
	},
	{
		ID:             "outdoor_picnic",
		ProductType:    "food",
		Prompt:         "product photo on a picnic blanket in a sunny park, fresh and airy mood, greenery bokeh",
		NegativePrompt: "blurry, watermark, harsh shadows",
		AspectRatio:    "16:9",
		InjectionLevel: domain.InjectionFull,
		SubCategory:    "lifestyle",
	},
	{
		ID:             "flatlay_fabric",
		ProductType:    "fashion",
		Prompt:         "flat lay product photo on textured linen fabric, top-down view, even soft lighting",
		NegativePrompt: "blurry, watermark, wrinkled mess",
		AspectRatio:    "1:1",
		InjectionLevel: domain.InjectionLight,
		SubCategory:    "flatlay",
	},
	{
		ID:                  "gradient_backdrop",
		ProductType:         "skincare",
		Prompt:              "product photo against a smooth pastel gradient backdrop, floating composition, studio rim light",
		NegativePrompt:      "blurry, watermark, text",
		AspectRatio:         "9:16",
		RecommendedProvider: "qwen",
		InjectionLevel:      domain.InjectionNone,
		SubCategory:         "studio",
	},
}

var defaultStyles = []domain.StyleDefinition{
	{
		ID:   "elegant",
		Name: "Elegant",
		Fragments: map[domain.InjectionLevel]domain.StyleFragment{
			domain.InjectionLight: {Prefix: "elegant composition, ", Suffix: ", refined color palette"},
			domain.InjectionFull:  {Prefix: "elegant high-end editorial composition, muted tones, ", Suffix: ", refined color palette, premium magazine aesthetic"},
		},
	},
	{
		ID:   "minimalist",
		Name: "Minimalist",
		Fragments: map[domain.InjectionLevel]domain.StyleFragment{
			domain.InjectionLight: {Prefix: "minimalist framing, ", Suffix: ", generous negative space"},
			domain.InjectionFull:  {Prefix: "strict minimalist framing, single subject, ", Suffix: ", generous negative space, monochrome accents"},
		},
	},
	{
		ID:   "luxury",
		Name: "Luxury",
		Fragments: map[domain.InjectionLevel]domain.StyleFragment{
			domain.InjectionLight: {Prefix: "luxurious mood, ", Suffix: ", gold accent lighting"},
			domain.InjectionFull:  {Prefix: "opulent luxury scene, dramatic chiaroscuro lighting, ", Suffix: ", gold accent lighting, velvet textures"},
		},
	},
	{
		ID:   "fun",
		Name: "Fun",
		Fragments: map[domain.InjectionLevel]domain.StyleFragment{
			domain.InjectionLight: {Prefix: "playful vibrant mood, ", Suffix: ", saturated pop colors"},
			domain.InjectionFull:  {Prefix: "playful pop-art inspired scene, confetti details, ", Suffix: ", saturated pop colors, dynamic angles"},
		},
	},
}

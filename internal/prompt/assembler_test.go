package prompt

import (
	"errors"
	"sync"
	"testing"

	"server/internal/domain"
)

var testTemplate = domain.SceneTemplate{
	ID:             "studio_white",
	ProductType:    "food",
	Prompt:         "product on white background",
	NegativePrompt: "blurry",
	AspectRatio:    "1:1",
	InjectionLevel: domain.InjectionLight,
}

var testStyle = domain.StyleDefinition{
	ID: "elegant",
	Fragments: map[domain.InjectionLevel]domain.StyleFragment{
		domain.InjectionLight: {Prefix: "elegant, ", Suffix: ", refined"},
		domain.InjectionFull:  {Prefix: "very elegant, ", Suffix: ", very refined"},
	},
}

func TestAssembleNoneReturnsRawPrompt(t *testing.T) {
	// The template's raw prompt must come back unchanged regardless of which
	// style is supplied.
	styles := []domain.StyleDefinition{testStyle, {ID: "empty"}, {}}
	for _, style := range styles {
		got, err := Assemble(testTemplate, style, domain.InjectionNone)
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		if got.Prompt != testTemplate.Prompt {
			t.Fatalf("Prompt = %q, want raw %q", got.Prompt, testTemplate.Prompt)
		}
		if got.NegativePrompt != testTemplate.NegativePrompt {
			t.Fatalf("NegativePrompt = %q, want %q", got.NegativePrompt, testTemplate.NegativePrompt)
		}
		if got.AspectRatio != testTemplate.AspectRatio {
			t.Fatalf("AspectRatio = %q, want %q", got.AspectRatio, testTemplate.AspectRatio)
		}
	}
}

func TestAssembleInjectionLevels(t *testing.T) {
	tests := []struct {
		name     string
		override domain.InjectionLevel
		want     string
	}{
		{"template default light", "", "elegant, product on white background, refined"},
		{"override full wins", domain.InjectionFull, "very elegant, product on white background, very refined"},
		{"override none wins", domain.InjectionNone, "product on white background"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Assemble(testTemplate, testStyle, tt.override)
			if err != nil {
				t.Fatalf("Assemble: %v", err)
			}
			if got.Prompt != tt.want {
				t.Fatalf("Prompt = %q, want %q", got.Prompt, tt.want)
			}
		})
	}
}

func TestAssembleStyleNeverInjectsNegatives(t *testing.T) {
	got, err := Assemble(testTemplate, testStyle, domain.InjectionFull)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got.NegativePrompt != "blurry" {
		t.Fatalf("NegativePrompt = %q, want template's only", got.NegativePrompt)
	}
}

func TestAssembleMissingFragmentIsConfigurationError(t *testing.T) {
	bare := domain.StyleDefinition{ID: "bare"}
	_, err := Assemble(testTemplate, bare, domain.InjectionFull)
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}

func TestHumanizeID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"studio_white", "Studio White"},
		{"outdoor-picnic", "Outdoor Picnic"},
		{"  cafe_table ", "Cafe Table"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := HumanizeID(tt.in); got != tt.want {
			t.Errorf("HumanizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Scheduler task goroutines, the recovery sweep and catalog handlers all
// humanize IDs concurrently; run with -race.
func TestHumanizeIDConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := HumanizeID("studio_white"); got != "Studio White" {
					t.Errorf("HumanizeID = %q, want %q", got, "Studio White")
					return
				}
			}
		}()
	}
	wg.Wait()
}

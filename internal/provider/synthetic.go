package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
)

// SyntheticGenerator produces deterministic placeholder images locally. It
// keeps the full pipeline (admission, ledger, storage, events) exercisable in
// development and CI environments without any upstream credentials, and
// serves as the fallback backend when a real provider has no key.
type SyntheticGenerator struct{}

func NewSyntheticGenerator() *SyntheticGenerator { return &SyntheticGenerator{} }

func (g *SyntheticGenerator) Name() string { return "synthetic" }

func (g *SyntheticGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	width, height := aspectSize(req.AspectRatio)
	seed := syntheticSeed(req.RequestID, req.Prompt)
	data := renderSyntheticImage(width, height, seed)
	if data == nil {
		return nil, &ProviderError{Provider: g.Name(), Message: "failed to encode synthetic image"}
	}
	return &Asset{Data: data, Format: "image/png", Width: width, Height: height}, nil
}

var _ Generator = (*SyntheticGenerator)(nil)

func syntheticSeed(parts ...string) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(part))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

func renderSyntheticImage(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripe := height / 12
	if stripe < 32 {
		stripe = 32
	}
	for y := 0; y < height; y += stripe * 2 {
		bottom := y + stripe
		if bottom > height {
			bottom = height
		}
		draw.Draw(img, image.Rect(0, y, width, bottom), &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = seed + "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

// aspectSize maps the catalog's aspect ratios onto concrete pixel sizes.
func aspectSize(aspect string) (int, int) {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return 1280, 720
	case "9:16":
		return 720, 1280
	case "4:3":
		return 1152, 864
	case "3:4":
		return 864, 1152
	case "1:1", "":
		return 1024, 1024
	default:
		parts := strings.Split(aspect, ":")
		if len(parts) == 2 {
			a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
			b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
			if errA == nil && errB == nil && a > 0 && b > 0 {
				return 1024, 1024 * b / a
			}
		}
		return 1024, 1024
	}
}

// ExtensionForFormat maps a provider-reported MIME type onto a file
// extension for storage keys.
func ExtensionForFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

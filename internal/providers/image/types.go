package image

import (
	"context"
	"errors"
	"strings"
)

// ErrMissingAPIKey is returned when a remote generator is built without credentials.
var ErrMissingAPIKey = errors.New("image: api key is required")

const (
	RenderingSpeedTurbo   = "TURBO"
	RenderingSpeedDefault = "DEFAULT"
	RenderingSpeedQuality = "QUALITY"

	MagicPromptOn   = "ON"
	MagicPromptOff  = "OFF"
	MagicPromptAuto = "AUTO"
)

// Request describes a single prompt to render.
type Request struct {
	Prompt         string
	RenderingSpeed string
	MagicPrompt    string
}

// Generator is the contract implemented by all image providers. It returns
// the URLs of the rendered images.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]string, error)
	Name() string
}

// NormalizeRenderingSpeed maps free-form input onto a supported speed.
func NormalizeRenderingSpeed(speed string) string {
	switch strings.ToUpper(strings.TrimSpace(speed)) {
	case RenderingSpeedDefault:
		return RenderingSpeedDefault
	case RenderingSpeedQuality:
		return RenderingSpeedQuality
	default:
		return RenderingSpeedTurbo
	}
}

// NormalizeMagicPrompt maps free-form input onto a supported magic prompt mode.
func NormalizeMagicPrompt(mode string) string {
	switch strings.ToUpper(strings.TrimSpace(mode)) {
	case MagicPromptOff:
		return MagicPromptOff
	case MagicPromptAuto:
		return MagicPromptAuto
	default:
		return MagicPromptOn
	}
}

package prompt

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrMissingAPIKey is returned when a remote generator is built without credentials.
	ErrMissingAPIKey = errors.New("prompt: api key is required")
	// ErrPromptCount is returned when a model answers with the wrong number of prompts.
	ErrPromptCount = errors.New("prompt: unexpected prompt count")
)

// Request describes one uploaded image and the brief used to derive prompts from it.
type Request struct {
	Image []byte
	MIME  string
	Brief string
	Count int
}

// Generator produces image generation prompts for an uploaded creative.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]string, error)
	Name() string
}

var staticStyles = []string{
	"clean studio product shot",
	"bold typographic poster",
	"lifestyle photo with natural light",
	"flat illustration with vivid colors",
	"minimalist layout with generous whitespace",
	"retro print advertisement",
	"high contrast neon night scene",
	"warm documentary style photograph",
}

// StaticGenerator derives deterministic prompts locally. It stands in for a
// remote model when no API key is configured.
type StaticGenerator struct{}

func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

func (s *StaticGenerator) Name() string { return staticProviderName }

func (s *StaticGenerator) Generate(ctx context.Context, req Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	count := req.Count
	if count <= 0 {
		return nil, fmt.Errorf("%w: requested %d", ErrPromptCount, count)
	}
	brief := coalesce(req.Brief, "marketing creative")
	title := cases.Title(language.English).String(firstClause(brief))
	offset := imageOffset(req.Image)

	prompts := make([]string, count)
	for i := range prompts {
		style := staticStyles[(offset+i)%len(staticStyles)]
		prompts[i] = fmt.Sprintf("%s ad variation %d: %s inspired by the uploaded image, with a clear call to action. Brief: %s", title, i+1, style, brief)
	}
	return prompts, nil
}

func firstClause(brief string) string {
	if idx := strings.IndexAny(brief, "|.\n"); idx > 0 {
		brief = brief[:idx]
	}
	brief = strings.TrimSpace(brief)
	if _, rest, ok := strings.Cut(brief, ":"); ok && strings.TrimSpace(rest) != "" {
		brief = strings.TrimSpace(rest)
	}
	return brief
}

func imageOffset(image []byte) int {
	if len(image) == 0 {
		return 0
	}
	sum := sha256.Sum256(image)
	return int(binary.BigEndian.Uint32(sum[:4]) % uint32(len(staticStyles)))
}

var _ Generator = (*StaticGenerator)(nil)

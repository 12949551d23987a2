package image

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SyntheticGenerator returns placeholder URLs derived from the prompt. It is
// used when no Ideogram key is configured.
type SyntheticGenerator struct {
	baseURL string
}

func NewSyntheticGenerator(baseURL string) *SyntheticGenerator {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://placehold.co"
	}
	return &SyntheticGenerator{baseURL: baseURL}
}

func (s *SyntheticGenerator) Name() string { return "synthetic" }

func (s *SyntheticGenerator) Generate(ctx context.Context, req Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("synthetic: prompt is required")
	}
	sum := sha256.Sum256([]byte(prompt))
	tag := hex.EncodeToString(sum[:6])
	return []string{fmt.Sprintf("%s/1024x1024/%s/ffffff.png?text=%s", s.baseURL, tag, tag)}, nil
}

var _ Generator = (*SyntheticGenerator)(nil)

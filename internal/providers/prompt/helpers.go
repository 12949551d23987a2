package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	staticProviderName = "static"
	openAIProviderName = "openai"
)

func buildSystemPrompt(count int) string {
	sb := &strings.Builder{}
	sb.WriteString("You are a marketer and image analyst. You will be given an image and a brief describing the audience. ")
	sb.WriteString("Analyze the image in detail and look for the call to action in it. ")
	fmt.Fprintf(sb, "Then generate %d distinct, creative and marketable prompts for generating new images inspired by the original with Ideogram. ", count)
	sb.WriteString("Prompts must be likely to convert for the given age group, each prompt must be unique and follow magic prompt guidelines. ")
	fmt.Fprintf(sb, "Output ONLY the %d prompts as a valid JSON array of strings, and nothing else.", count)
	return sb.String()
}

// parsePromptList decodes a JSON array of prompts and requires exactly want
// non-empty entries.
func parsePromptList(raw string, want int) ([]string, error) {
	items, err := parseModelPayload[[]string](raw)
	if err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	prompts := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			prompts = append(prompts, item)
		}
	}
	if len(prompts) != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrPromptCount, len(prompts), want)
	}
	return prompts, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

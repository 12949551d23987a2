package domain

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	MinPromptLength = 10
	MaxPromptLength = 10000
)

// Sentiments are the tones offered by the web client.
var Sentiments = []string{
	"Professional", "Salesy", "Funny", "Occasional", "Casual", "Formal",
	"Emotional", "Inspirational", "Educational", "Conversational", "Authoritative",
	"Friendly", "Humorous", "Serious", "Playful", "Mixed",
}

// Brief is the marketing metadata a campaign is generated for.
type Brief struct {
	Vertical  string `json:"vertical"`
	AgeGroup  string `json:"ageGroup"`
	Sentiment string `json:"sentiment"`
	Angle     string `json:"angle"`
}

// Empty reports whether no field was provided.
func (b Brief) Empty() bool {
	return strings.TrimSpace(b.Vertical) == "" && strings.TrimSpace(b.AgeGroup) == "" &&
		strings.TrimSpace(b.Sentiment) == "" && strings.TrimSpace(b.Angle) == ""
}

// Normalize trims every field and title-cases the sentiment.
func (b Brief) Normalize() Brief {
	out := Brief{
		Vertical:  strings.TrimSpace(b.Vertical),
		AgeGroup:  strings.TrimSpace(b.AgeGroup),
		Sentiment: strings.TrimSpace(b.Sentiment),
		Angle:     strings.TrimSpace(b.Angle),
	}
	if out.Sentiment != "" {
		out.Sentiment = cases.Title(language.English).String(out.Sentiment)
	}
	return out
}

// Validate requires every field.
func (b Brief) Validate() error {
	var missing []string
	if b.Vertical == "" {
		missing = append(missing, "vertical")
	}
	if b.AgeGroup == "" {
		missing = append(missing, "age group")
	}
	if b.Sentiment == "" {
		missing = append(missing, "sentiment")
	}
	if b.Angle == "" {
		missing = append(missing, "angle")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidPrompt, strings.Join(missing, ", "))
	}
	return nil
}

// String renders the brief as the prompt text sent to the vision model.
func (b Brief) String() string {
	return fmt.Sprintf("Vertical: %s | Age Group: %s | Sentiment: %s | Angle: %s", b.Vertical, b.AgeGroup, b.Sentiment, b.Angle)
}

// ValidatePrompt enforces the length bounds and returns the HTML-escaped prompt.
func ValidatePrompt(prompt string) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	n := utf8.RuneCountInString(trimmed)
	if n < MinPromptLength || n > MaxPromptLength {
		return "", fmt.Errorf("%w: prompt must be between %d and %d characters", ErrInvalidPrompt, MinPromptLength, MaxPromptLength)
	}
	return html.EscapeString(trimmed), nil
}

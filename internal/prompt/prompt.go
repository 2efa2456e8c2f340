// Package prompt holds the fixed system prompt templates used for analysis requests.
package prompt

import (
	"strings"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

// DefaultLanguage is used when a request carries no language hint.
const DefaultLanguage = "English"

const (
	sentimentTemplate = `You are a social media sentiment analyst.
Classify the overall sentiment of the given posts as positive, negative or neutral.
Respond with JSON: {"sentiment": "...", "score": <-1.0..1.0>, "positive_ratio": <0..1>, "negative_ratio": <0..1>, "neutral_ratio": <0..1>, "reasons": ["..."]}.`

	crisisTemplate = `You are a reputation crisis monitoring expert.
Assess whether the given social media content indicates an emerging crisis for the monitored brand or topic.
Respond with JSON: {"crisis_level": "none|low|medium|high|critical", "score": <0..100>, "signals": ["..."], "recommended_actions": ["..."]}.`

	emotionTemplate = `You are an emotion analysis expert for social media content.
Estimate the intensity of joy, anger, sadness, fear, surprise and disgust in the given posts.
Respond with JSON: {"emotions": {"joy": <0..1>, "anger": <0..1>, "sadness": <0..1>, "fear": <0..1>, "surprise": <0..1>, "disgust": <0..1>}, "dominant": "..."}.`

	summaryTemplate = `You are a social media monitoring analyst.
Summarize the key topics, notable opinions and trends in the given posts in a short report.
Write the summary in {{language}}.`

	chatTemplate = `You are an AI assistant for a social media monitoring console.
Answer the operator's question using the monitoring context provided.
Answer in {{language}}.`
)

var templates = map[domain.AnalysisKind]string{
	domain.KindSentiment: sentimentTemplate,
	domain.KindCrisis:    crisisTemplate,
	domain.KindEmotion:   emotionTemplate,
	domain.KindSummary:   summaryTemplate,
	domain.KindChat:      chatTemplate,
}

var languageNames = map[string]string{
	"ko": "Korean",
	"en": "English",
	"ja": "Japanese",
	"zh": "Chinese",
}

// Builder renders a system prompt for a request.
type Builder func(kind domain.AnalysisKind, language string) string

// SystemPrompt selects the template for kind. Unknown kinds fall back to chat.
// The language hint only affects the summary and chat templates.
func SystemPrompt(kind domain.AnalysisKind, language string) string {
	tmpl, ok := templates[kind]
	if !ok {
		tmpl = chatTemplate
	}
	return strings.ReplaceAll(tmpl, "{{language}}", LanguageName(language))
}

// LanguageName maps a locale hint to the name used inside prompts.
func LanguageName(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		return DefaultLanguage
	}
	code := strings.ToLower(language)
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if name, ok := languageNames[code]; ok {
		return name
	}
	return language
}

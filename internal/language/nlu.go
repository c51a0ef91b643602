package language

import (
	"regexp"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// Pattern-based understanding. Keyword matching is deliberately simple: the
// companion must answer within the gateway's deadline on small hardware, and
// a real model server can replace this layer behind the same HTTP surface.

// Intent classification confidence levels.
const (
	matchedConfidence = 0.85
	unknownConfidence = 0.40
)

// intentPatterns are checked in order; first match wins, so the more specific
// intents come first. "run" alone would otherwise swallow "run my errands
// reminder".
var intentPatterns = []struct {
	intent  string
	pattern *regexp.Regexp
}{
	{"system.shutdown", regexp.MustCompile(`(?i)\b(goodnight|good night|bye|goodbye|shutdown|shut down|sleep|see you)\b`)},
	{"system.status", regexp.MustCompile(`(?i)\b(how are you|how('re| are) you|status|are you ok|feeling|doing)\b`)},
	{"task.create", regexp.MustCompile(`(?i)\b(remind me|set a reminder|create (a )?(task|reminder)|add (a )?(task|reminder)|remember to)\b`)},
	{"task.list", regexp.MustCompile(`(?i)\b(list (my )?(tasks?|reminders?)|what('s| is) on my (list|agenda)|show (me )?(my )?(tasks?|reminders?))\b`)},
	{"skill.execute", regexp.MustCompile(`(?i)\b(run|execute|start|launch|activate|trigger)\b`)},
	{"query.memory", regexp.MustCompile(`(?i)\b(do you remember|remember when|recall|don'?t you remember)\b`)},
	{"query.factual", regexp.MustCompile(`(?i)\b(what is|what are|who is|who are|when did|where is|how does|tell me about|explain|define)\b`)},
	{"chitchat", regexp.MustCompile(`(?i)\b(hi|hello|hey|sup|what'?s up|how'?s it going|hola|howdy|greetings)\b`)},
}

var (
	sentimentPositive = regexp.MustCompile(`(?i)\b(great|good|happy|love|excellent|wonderful|fantastic|awesome|nice|glad|joy|pleased|amazing)\b`)
	sentimentNegative = regexp.MustCompile(`(?i)\b(bad|sad|hate|terrible|awful|horrible|angry|upset|frustrated|depressed|annoyed|worried|scared)\b`)

	datePattern = regexp.MustCompile(`(?i)\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?)\b`)
	timePattern = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}(?:\s*[ap]m)?|\d{1,2}\s*[ap]m)\b`)
	namePattern = regexp.MustCompile(`\b(?:my name is|i'?m|call me)\s+([A-Z][a-z]+)\b`)
)

// ClassifyIntent returns the first matching intent with high confidence, or
// "unknown" with low confidence.
func ClassifyIntent(text string) (string, float64) {
	for _, candidate := range intentPatterns {
		if candidate.pattern.MatchString(text) {
			return candidate.intent, matchedConfidence
		}
	}
	return "unknown", unknownConfidence
}

// ExtractEntities pulls DATE, TIME and PERSON entities out of the text.
// PERSON matching is case-sensitive: capitalized names only.
func ExtractEntities(text string) []bus.Entity {
	var entities []bus.Entity
	for _, match := range datePattern.FindAllString(text, -1) {
		entities = append(entities, bus.Entity{Type: "DATE", Value: match})
	}
	for _, match := range timePattern.FindAllString(text, -1) {
		entities = append(entities, bus.Entity{Type: "TIME", Value: match})
	}
	for _, match := range namePattern.FindAllStringSubmatch(text, -1) {
		entities = append(entities, bus.Entity{Type: "PERSON", Value: match[1]})
	}
	return entities
}

// AnalyzeSentiment counts positive and negative lexicon hits. Ties and
// lexicon-free text are neutral at 0.5.
func AnalyzeSentiment(text string) (string, float64) {
	pos := len(sentimentPositive.FindAllString(text, -1))
	neg := len(sentimentNegative.FindAllString(text, -1))
	total := pos + neg
	if total == 0 {
		total = 1
	}
	switch {
	case pos > neg:
		return "positive", round2(float64(pos) / float64(total))
	case neg > pos:
		return "negative", round2(float64(neg) / float64(total))
	default:
		return "neutral", 0.5
	}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

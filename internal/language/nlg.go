package language

import (
	"regexp"
	"strconv"
	"strings"
)

// Template-based generation. Each intent maps to a pool ordered from terse to
// warm; personality picks the slot. Placeholders: {name}, {topic}, {task},
// {count}, {emotion_adj}.
var templates = map[string][]string{
	"chitchat": {
		"Hey {name}! Always {emotion_adj} to chat with you. What's on your mind?",
		"Hi {name}! I'm feeling {emotion_adj} today — how about you?",
		"Great to hear from you, {name}! What shall we talk about?",
		"You know, {name}, I was just thinking about you. What's up?",
		"Hello, {name}! I'm here and {emotion_adj} to listen. Tell me everything.",
	},
	"query.factual": {
		"That's a {emotion_adj} question, {name}! Here's what I know about {topic}: ",
		"Let me think about {topic} for a moment… Here's what I can share:",
		"Good question, {name}. Regarding {topic}: ",
		"I love when you ask about {topic}! Here's the short answer:",
		"Sure, {name} — here's a {emotion_adj} summary of {topic}:",
	},
	"query.memory": {
		"Of course I remember, {name}! That moment with {topic} was {emotion_adj}.",
		"Ah yes, {topic} — I keep that memory close. It felt {emotion_adj}.",
		"How could I forget, {name}? {topic} — that was truly {emotion_adj}.",
		"My memory of {topic} is vivid. It was {emotion_adj}, wasn't it?",
		"I treasure that, {name}. {topic} stands out as something {emotion_adj}.",
	},
	"task.create": {
		"Done! I've noted '{task}' for you, {name}. Feeling {emotion_adj} about it?",
		"Got it, {name} — '{task}' is on your list. I'll remind you.",
		"Noted! '{task}' is saved. You can count on me, {name}.",
		"Alright, I've added '{task}' to your reminders. Easy!",
		"'{task}' is locked in, {name}. I won't let you forget it.",
	},
	"task.list": {
		"Here are your current reminders, {name} — you have {count} item(s):",
		"Let me pull up your list… you've got {count} thing(s) pending, {name}.",
		"Your to-do list has {count} item(s). Want to tackle any of them?",
		"I count {count} reminder(s) for you, {name}. Here they are:",
		"Here's everything on your plate right now — {count} item(s), {name}:",
	},
	"skill.execute": {
		"On it, {name}! Running '{topic}' right now — this should be {emotion_adj}.",
		"Sure thing! Executing '{topic}'. I'll let you know when it's done.",
		"'{topic}' is underway, {name}. Fingers crossed it goes {emotion_adj}!",
		"Let me handle '{topic}' for you. Stand by, {name}.",
		"Running '{topic}'… I love being useful. Back in a moment!",
	},
	"system.status": {
		"I'm doing {emotion_adj}, {name}! All systems are running smoothly.",
		"Feeling {emotion_adj} and ready to help, {name}. Everything looks good.",
		"Status check: I'm {emotion_adj} and fully operational. What do you need?",
		"All green here, {name}. I'm {emotion_adj} and at your service.",
		"Running great, {name}! Memory and sensors nominal. Feeling {emotion_adj}.",
	},
	"system.shutdown": {
		"Goodnight, {name}. It was {emotion_adj} spending time with you. Sleep well.",
		"Rest well, {name}. I'll be here when you wake up. Today was {emotion_adj}.",
		"Sweet dreams, {name}. Shutting down with a {emotion_adj} feeling.",
		"Goodnight! Today felt {emotion_adj}. See you tomorrow, {name}.",
		"I'm going to rest too, {name}. It's been a {emotion_adj} day. Goodnight.",
	},
	"unknown": {
		"Hmm, I'm not quite sure what you mean, {name}. Could you rephrase that?",
		"I want to help, {name}, but I'm a bit lost. Can you say more?",
		"That one stumped me! I'm still learning. What did you have in mind, {name}?",
		"I'm not sure I caught that, {name}. Want to try again?",
		"I didn't quite get that, {name} — but I'm listening. Try me again?",
	},
}

// valenceAdjectives maps valence thresholds (descending) to adjectives.
var valenceAdjectives = []struct {
	threshold float64
	adjective string
}{
	{0.8, "wonderful"},
	{0.6, "great"},
	{0.4, "good"},
	{0.2, "okay"},
	{0.0, "neutral"},
	{-0.2, "a bit unsure"},
	{-0.4, "concerned"},
	{-0.6, "worried"},
	{-1.0, "troubled"},
}

// ValenceToAdjective returns a descriptive adjective for a valence in [-1, 1].
func ValenceToAdjective(valence float64) string {
	for _, entry := range valenceAdjectives {
		if valence >= entry.threshold {
			return entry.adjective
		}
	}
	return "troubled"
}

// EmotionState is the affect snapshot generation takes into account.
type EmotionState struct {
	Valence float64 `json:"valence"`
	Arousal float64 `json:"arousal"`
	Label   string  `json:"label"`
}

// Personality is a Big Five profile; missing traits default to 0.5.
type Personality map[string]float64

func (p Personality) trait(name string) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return 0.5
}

// Tone holds the personality-derived generation modifiers.
type Tone struct {
	Warmth  float64
	Caution bool
	Verbose bool
}

// PersonalityTone derives tone modifiers from Big Five scores: warmth from
// extraversion plus a fraction of agreeableness, caution above 0.6
// neuroticism.
func PersonalityTone(p Personality) Tone {
	warmth := p.trait("extraversion") + p.trait("agreeableness")*0.3
	if warmth > 1 {
		warmth = 1
	}
	return Tone{
		Warmth:  warmth,
		Caution: p.trait("neuroticism") > 0.6,
		Verbose: p.trait("extraversion") > 0.6,
	}
}

var topicPattern = regexp.MustCompile(`(?i)\b(?:about|of|regarding|is|are|was|were)\s+([a-zA-Z0-9 ]{2,30})`)

// Generate renders a response for the prompt: pick the template slot by
// extraversion, fill placeholders from the prompt and emotion, append a
// cautious suffix for high-neuroticism profiles.
func Generate(prompt, intent string, emotion EmotionState, personality Personality) string {
	pool, ok := templates[intent]
	if !ok {
		pool = templates["unknown"]
	}
	idx := int(personality.trait("extraversion") * float64(len(pool)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(pool) {
		idx = len(pool) - 1
	}

	topic := "that"
	if match := topicPattern.FindStringSubmatch(prompt); match != nil {
		topic = strings.TrimSpace(match[1])
	}

	name := "friend"
	for _, entity := range ExtractEntities(prompt) {
		if entity.Type == "PERSON" {
			name = entity.Value
			break
		}
	}

	text := renderTemplate(pool[idx], name, topic, "", 0, ValenceToAdjective(emotion.Valence))
	if PersonalityTone(personality).Caution {
		text += " (Let me know if I got anything wrong.)"
	}
	return text
}

func renderTemplate(template, name, topic, task string, count int, emotionAdj string) string {
	replacer := strings.NewReplacer(
		"{name}", name,
		"{topic}", topic,
		"{task}", task,
		"{count}", strconv.Itoa(count),
		"{emotion_adj}", emotionAdj,
	)
	return replacer.Replace(template)
}

package openai

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Reply is the structured answer the chat prompt asks the model for.
type Reply struct {
	Text string
	// SaveMemory is set when the model decided the message should become a reminder.
	SaveMemory *SaveMemory
}

// SaveMemory is a reminder the model asked to create.
type SaveMemory struct {
	IntervalSeconds int64
	Content         string
}

var (
	codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	factFieldRegex = regexp.MustCompile(`"fact"\s*:\s*"([^"]+)"`)
)

// ParseReply interprets model output. JSON objects yield reply (or message) and
// save_memory; anything else is used verbatim as the reply text.
func ParseReply(raw string) Reply {
	text := strings.TrimSpace(raw)
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if !gjson.Valid(text) {
		return Reply{Text: strings.TrimSpace(raw)}
	}

	parsed := gjson.Parse(text)
	if !parsed.IsObject() {
		return Reply{Text: parsed.String()}
	}

	reply := Reply{Text: parsed.Get("reply").String()}
	if reply.Text == "" {
		reply.Text = parsed.Get("message").String()
	}
	if save := parsed.Get("save_memory"); save.IsObject() {
		content := strings.TrimSpace(save.Get("content").String())
		if content != "" {
			reply.SaveMemory = &SaveMemory{
				IntervalSeconds: save.Get("interval").Int(),
				Content:         content,
			}
		}
	}
	return reply
}

// ParseFacts extracts fact strings from loosely formatted model output: plain JSON,
// fenced JSON, JSON embedded in prose, or one fact per line.
func ParseFacts(raw string) []string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	candidates := []string{text}
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	for _, candidate := range candidates {
		if !gjson.Valid(candidate) {
			continue
		}
		if facts, ok := factsFromJSON(gjson.Parse(candidate)); ok {
			return facts
		}
	}

	var facts []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if m := factFieldRegex.FindStringSubmatch(line); m != nil {
			facts = append(facts, m[1])
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "-*•"))
		if isJunkLine(line) {
			continue
		}
		facts = append(facts, line)
	}
	return facts
}

func factsFromJSON(r gjson.Result) ([]string, bool) {
	switch {
	case r.IsArray():
		facts := make([]string, 0, len(r.Array()))
		for _, item := range r.Array() {
			if fact := factText(item); fact != "" {
				facts = append(facts, fact)
			}
		}
		return facts, true
	case r.IsObject():
		if list := r.Get("facts"); list.IsArray() {
			return factsFromJSON(list)
		}
		if fact := r.Get("fact").String(); fact != "" {
			return []string{fact}, true
		}
		return nil, false
	case r.Type == gjson.String && r.String() != "":
		return []string{r.String()}, true
	default:
		return nil, false
	}
}

func factText(item gjson.Result) string {
	if item.IsObject() {
		return strings.TrimSpace(item.Get("fact").String())
	}
	if item.Type == gjson.String {
		return strings.TrimSpace(item.String())
	}
	return ""
}

func isJunkLine(line string) bool {
	switch line {
	case "", "{", "}", "[", "]", "```", "```json", "json", ",":
		return true
	}
	return false
}

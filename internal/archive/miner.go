package archive

import (
	"strings"
	"unicode/utf8"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/slack"
)

// questionMarkers is the fixed set of interrogative markers. A text
// containing any of them is treated as a question.
var questionMarkers = []string{
	"?", "？", "무엇", "뭐", "어떻게", "왜", "언제", "어디서", "누가", "방법", "어떤",
}

// IsQuestion reports whether the text looks like a question.
func IsQuestion(text string) bool {
	lowered := strings.ToLower(text)
	for _, marker := range questionMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// PickBestAnswer selects the most informative reply from a question's
// thread: the longest reply that is not itself a question. Replies written
// by the bot, blank replies, and replies shorter than three characters are
// discarded. Returns "" when nothing qualifies.
func PickBestAnswer(replies []slack.Message, botUserID string) string {
	var candidates []string
	for _, reply := range replies {
		if reply.BotID != "" || (botUserID != "" && reply.User == botUserID) {
			continue
		}
		text := strings.TrimSpace(reply.Text)
		if text == "" || utf8.RuneCountInString(text) < 3 {
			continue
		}
		candidates = append(candidates, reply.Text)
	}

	if len(candidates) == 0 {
		return ""
	}

	var nonQuestions []string
	for _, c := range candidates {
		if !IsQuestion(c) {
			nonQuestions = append(nonQuestions, c)
		}
	}

	preferred := candidates
	if len(nonQuestions) > 0 {
		preferred = nonQuestions
	}

	best := preferred[0]
	for _, c := range preferred[1:] {
		if utf8.RuneCountInString(c) > utf8.RuneCountInString(best) {
			best = c
		}
	}
	return best
}

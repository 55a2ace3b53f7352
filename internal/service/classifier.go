package service

import (
	"strings"

	"github.com/noah-isme/calendar2youtube/internal/models"
)

// EventClassifier derives streaming and privacy flags from event notes.
type EventClassifier struct {
	streaming []string
	private   []string
}

// NewEventClassifier constructs a classifier. Keywords are matched case-insensitively.
func NewEventClassifier(streamingKeywords, privateKeywords []string) *EventClassifier {
	return &EventClassifier{
		streaming: normaliseKeywords(streamingKeywords),
		private:   normaliseKeywords(privateKeywords),
	}
}

// Classify reports whether the event should be streamed and whether it is private.
func (c *EventClassifier) Classify(event models.SourceEvent) models.EventClass {
	if c == nil || event.Notes == "" {
		return models.EventClass{}
	}
	notes := strings.ToLower(event.Notes)
	return models.EventClass{
		Streaming: containsAny(notes, c.streaming),
		Private:   containsAny(notes, c.private),
	}
}

// FilterStreaming keeps the stream-eligible events in input order.
func (c *EventClassifier) FilterStreaming(events []models.SourceEvent) []models.SourceEvent {
	out := make([]models.SourceEvent, 0, len(events))
	for _, event := range events {
		if c.Classify(event).Streaming {
			out = append(out, event)
		}
	}
	return out
}

func normaliseKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			out = append(out, keyword)
		}
	}
	return out
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

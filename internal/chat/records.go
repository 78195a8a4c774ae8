package chat

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/healthyai/internal/ai"
)

// resolveRecord maps a stored record to its display form. ok is false when
// the resolved content is blank.
func resolveRecord(rec Message) (msg ChatMessage, ok bool) {
	var aiResp string
	if rec.AIResponse != nil {
		aiResp = *rec.AIResponse
	}

	role := Role(rec.Role)
	switch {
	case role == RoleUser || role == RoleAssistant:
	case aiResp != "":
		role = RoleAssistant
	default:
		role = RoleUser
	}

	content := rec.Text
	if role == RoleAssistant && aiResp != "" {
		content = aiResp
	}
	if strings.TrimSpace(content) == "" {
		return ChatMessage{}, false
	}

	msg = ChatMessage{Role: role, Content: content}
	if rec.IdempotencyKey != nil {
		msg.key = *rec.IdempotencyKey
	}
	if role == RoleAssistant && len(rec.Metadata) > 0 {
		var md Metadata
		if err := json.Unmarshal(rec.Metadata, &md); err == nil && !md.IsEmpty() {
			msg.Metadata = &md
		}
	}
	return msg, true
}

// dedupeKey is the idempotency key when the record has one, else the coarse
// (role, content) pair used for legacy rows.
func dedupeKey(m ChatMessage) string {
	if m.key != "" {
		return "key:" + m.key
	}
	return string(m.Role) + ":" + m.Content
}

// mergeRecords resolves, filters and deduplicates records that are already
// in ascending (created_at, id) order. First occurrence wins.
func mergeRecords(recs []Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		m, ok := resolveRecord(rec)
		if !ok {
			continue
		}
		k := dedupeKey(m)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, m)
	}
	return out
}

func greetingMessages() []ChatMessage {
	return []ChatMessage{{Role: RoleAssistant, Content: Greeting}}
}

// BuildTitle derives a session title from the first user message.
func BuildTitle(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(content) <= 40 {
		return content
	}
	return string([]rune(content)[:37]) + "..."
}

// MetadataFromReply keeps only the fields the backend actually filled in.
func MetadataFromReply(r *ai.Reply) Metadata {
	if r == nil {
		return Metadata{}
	}
	md := Metadata{
		Intent:  r.Intent,
		Risk:    r.Risk,
		Stage:   r.Stage,
		Sources: r.Sources,
	}
	if r.Intent != "" || r.IntentConfidence > 0 {
		c := r.IntentConfidence
		md.IntentConfidence = &c
	}
	return md
}

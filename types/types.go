package types

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a conversation turn. Stored lowercase, rendered via Label
// for transcripts and hashing.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleUnknown   Role = "unknown"
)

// RoleFromString maps a persisted role value back to a Role, falling back
// to RoleUnknown for anything unrecognized.
func RoleFromString(s string) Role {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(s)
	default:
		return RoleUnknown
	}
}

// Label returns the capitalized role name used in transcripts.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return "Unknown"
	}
}

// ConversationTurn is a single message in a conversation log.
type ConversationTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// SectionType classifies a detected document section.
type SectionType string

const (
	SectionHeader    SectionType = "header"
	SectionParagraph SectionType = "paragraph"
)

// Section is a transient unit produced by section detection during chunking.
type Section struct {
	Content string
	Type    SectionType
}

// PageText is one extracted page with its actual 1-indexed page number.
type PageText struct {
	Number  int
	Content string
}

// Document is the extracted form of an uploaded file, ready for chunking.
type Document struct {
	ID         uuid.UUID
	SourceFile string
	Language   string
	Pages      []PageText
	CreatedAt  time.Time
}

// RetrievalChunk is the indexed retrieval unit: a bounded span of document
// text with citation metadata. Content carries the literal
// "[SOURCE: <filename>, PAGE: <n>]" framing so the model can cite sources.
// Immutable once emitted by the chunker.
type RetrievalChunk struct {
	ID            uuid.UUID
	DocID         uuid.UUID
	SourceFile    string
	PageNumber    int
	Language      string
	Index         int
	Content       string
	TokenEstimate int
	Embedding     []float32
	Distance      float64
}

// CachedSummary is a content-addressed summary of an older turn range,
// unique per (ConversationID, RangeHash).
type CachedSummary struct {
	ConversationID string
	RangeHash      string
	SummaryText    string
	MessageCount   int
	TokenEstimate  int
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Conversation is the per-thread metadata row.
type Conversation struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

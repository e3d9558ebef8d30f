package ingest

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"analyzer/types"

	"github.com/google/uuid"
)

// Chunk size budget, in estimated tokens. MaxChunkTokens is the safe input
// limit of the embedding model; overlap keeps context flowing between
// neighboring chunks.
const (
	MinChunkTokens    = 256
	TargetChunkTokens = 384
	MaxChunkTokens    = 512
	OverlapTokens     = 100
	CharsPerToken     = 4
)

var (
	numberedPrefix = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+`)
	paragraphGap   = regexp.MustCompile(`\n\n+`)
	sentenceEnd    = regexp.MustCompile(`[.!?]\s+`)
)

// ChunkDocument splits an extracted document into ordered retrieval chunks,
// respecting section boundaries and carrying sentence-aligned overlap
// between neighbors. Page numbers are attributed proportionally from the
// character position, not tracked exactly.
func ChunkDocument(doc types.Document) []types.RetrievalChunk {
	pageTexts := make([]string, len(doc.Pages))
	for i, p := range doc.Pages {
		pageTexts[i] = p.Content
	}
	fullText := strings.Join(pageTexts, "\n\n")
	totalPages := len(doc.Pages)
	totalChars := utf8.RuneCountInString(fullText)
	avgCharsPerPage := totalChars / max(totalPages, 1)

	slog.Info("chunking document",
		"file", doc.SourceFile,
		"language", doc.Language,
		"pages", totalPages,
		"chars", totalChars,
		"avg_chars_per_page", avgCharsPerPage)

	sections := detectSections(fullText, doc.Language)

	p := &packer{
		docID:           doc.ID,
		filename:        doc.SourceFile,
		language:        doc.Language,
		totalPages:      totalPages,
		avgCharsPerPage: avgCharsPerPage,
	}

	for _, section := range sections {
		sectionTokens := estimateTokens(section.Content)

		switch {
		case sectionTokens < MinChunkTokens:
			// Small section: accumulate until the pending buffer fills up.
			p.pending.WriteString(section.Content)
			p.pending.WriteString("\n\n")

		case sectionTokens <= MaxChunkTokens:
			// Perfect size: flush anything pending, then emit the section
			// on its own, with carried overlap if the sum still fits.
			p.flushPending()
			if p.overlap != "" && estimateTokens(p.overlap)+sectionTokens <= MaxChunkTokens {
				p.emit(section.Content, true)
			} else {
				p.emit(section.Content, false)
			}

		default:
			// Oversized section: split at paragraph boundaries.
			p.flushPending()
			for _, sub := range splitLargeSection(section.Content, TargetChunkTokens) {
				p.emit(sub, true)
			}
		}

		if estimateTokens(p.pending.String()) >= TargetChunkTokens {
			p.flushPending()
		}
	}

	// A degenerate trailing buffer is dropped instead of becoming a chunk.
	if utf8.RuneCountInString(p.pending.String()) > MinChunkTokens/CharsPerToken {
		p.emit(p.pending.String(), true)
	}

	slog.Info("chunked document", "file", doc.SourceFile, "chunks", len(p.chunks))
	return p.chunks
}

// packer folds the section sequence into emitted chunks. It owns the three
// moving parts of the emission protocol: the pending accumulation buffer,
// the carried overlap tail, and the character cursor used for proportional
// page attribution.
type packer struct {
	docID           uuid.UUID
	filename        string
	language        string
	totalPages      int
	avgCharsPerPage int

	pending strings.Builder
	overlap string
	charPos int
	chunks  []types.RetrievalChunk
}

// emit is the single emission step: frame one chunk from body (prefixed with
// the carried overlap when requested), advance the page cursor by the body
// length, and refresh the overlap from the body's tail.
func (p *packer) emit(body string, withOverlap bool) {
	content := body
	if withOverlap {
		content = p.overlap + body
	}

	if trimmed := strings.TrimSpace(content); trimmed != "" {
		page := p.currentPage()
		framed := fmt.Sprintf("[SOURCE: %s, PAGE: %d]\n\n%s", p.filename, page, trimmed)
		p.chunks = append(p.chunks, types.RetrievalChunk{
			ID:            uuid.New(),
			DocID:         p.docID,
			SourceFile:    p.filename,
			PageNumber:    page,
			Language:      p.language,
			Index:         len(p.chunks),
			Content:       framed,
			TokenEstimate: estimateTokens(framed),
		})
	}

	p.charPos += utf8.RuneCountInString(body)
	p.overlap = extractOverlap(body, OverlapTokens)
}

func (p *packer) flushPending() {
	if p.pending.Len() == 0 {
		return
	}
	body := p.pending.String()
	p.pending.Reset()
	p.emit(body, true)
}

// currentPage approximates the page of the chunk starting at the current
// character position. Proportional, so citations near page boundaries can
// be off by one.
func (p *packer) currentPage() int {
	page := 1 + p.charPos/max(p.avgCharsPerPage, 1)
	return min(page, p.totalPages)
}

// detectSections splits text on blank-line boundaries and groups the parts
// into header/paragraph sections, flushing whenever a section reaches the
// target token size.
func detectSections(text, language string) []types.Section {
	var sections []types.Section

	var current strings.Builder
	currentType := types.SectionParagraph

	for _, part := range splitBeforeBlankLines(text) {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}

		if isHeader(trimmed, language) {
			if utf8.RuneCountInString(current.String()) > MinChunkTokens/CharsPerToken {
				sections = append(sections, types.Section{
					Content: strings.TrimSpace(current.String()),
					Type:    currentType,
				})
				current.Reset()
			}
			currentType = types.SectionHeader
		}

		current.WriteString(part)

		if estimateTokens(current.String()) >= TargetChunkTokens {
			sections = append(sections, types.Section{
				Content: strings.TrimSpace(current.String()),
				Type:    currentType,
			})
			current.Reset()
			currentType = types.SectionParagraph
		}
	}

	if current.Len() > 0 {
		sections = append(sections, types.Section{
			Content: strings.TrimSpace(current.String()),
			Type:    currentType,
		})
	}

	return sections
}

// splitBeforeBlankLines cuts text before each blank-line boundary, keeping
// the delimiter with the following part.
func splitBeforeBlankLines(text string) []string {
	var parts []string
	start := 0
	i := 0
	for i+1 < len(text) {
		if i > start && text[i] == '\n' && text[i+1] == '\n' {
			parts = append(parts, text[start:i])
			start = i
			i += 2
			continue
		}
		i++
	}
	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return parts
}

// isHeader reports whether a text block looks like a section header.
// Works for both Hebrew and English.
func isHeader(text, language string) bool {
	lines := strings.Split(text, "\n")
	firstLine := strings.TrimSpace(lines[0])

	// Ends with a colon (optionally followed by an RTL mark).
	if strings.HasSuffix(firstLine, ":") || strings.HasSuffix(firstLine, ":‏") {
		return true
	}

	// Numbered section: "1.", "1.1", "2.3.4 Title".
	if numberedPrefix.MatchString(firstLine) {
		return true
	}

	// Short line followed by more content.
	if utf8.RuneCountInString(firstLine) < 80 && len(lines) > 1 {
		return true
	}

	// All-uppercase line (English only).
	if language == "en" && firstLine == strings.ToUpper(firstLine) && utf8.RuneCountInString(firstLine) < 100 {
		return true
	}

	return false
}

// splitLargeSection breaks an oversized section into sub-chunks at paragraph
// boundaries, each aiming for targetTokens.
func splitLargeSection(section string, targetTokens int) []string {
	var chunks []string
	var current strings.Builder

	for _, para := range paragraphGap.Split(section, -1) {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			continue
		}

		if estimateTokens(current.String())+estimateTokens(trimmed) > targetTokens && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}

		current.WriteString(trimmed)
		current.WriteString("\n\n")
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}

// extractOverlap returns the trailing context of text, trimmed to the first
// sentence boundary inside the overlap window when one exists. The window
// is measured in characters and must cut on a rune boundary so multi-byte
// scripts survive the slice intact.
func extractOverlap(text string, overlapTokens int) string {
	overlapChars := overlapTokens * CharsPerToken
	runes := []rune(text)
	if len(runes) <= overlapChars {
		return text
	}

	window := string(runes[len(runes)-overlapChars:])
	startPos := len(text) - len(window)

	lastSentenceEnd := -1
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		if m[0] > startPos && m[0] < len(text)-10 {
			lastSentenceEnd = m[1]
			break
		}
	}

	if lastSentenceEnd > startPos {
		return strings.TrimSpace(text[lastSentenceEnd:])
	}

	return strings.TrimSpace(window)
}

// estimateTokens approximates token count from character length. Constant
// and language-agnostic; the conversational memory uses a language-aware
// estimator instead.
func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

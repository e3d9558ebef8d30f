package ingest

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// Long alphanumeric runs are almost always base64 payloads from embedded
	// images and break the embedding API.
	base64Pattern = regexp.MustCompile(`[A-Za-z0-9+/]{50,}={0,2}`)

	multiSpace   = regexp.MustCompile(` {2,}`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

// CleanText scrubs extracted text before it is chunked and embedded.
// It strips base64-like blobs, control characters and exotic Unicode,
// normalizes whitespace and drops blank lines.
func CleanText(text string) string {
	if text == "" {
		return text
	}

	text = base64Pattern.ReplaceAllString(text, " ")

	var cleaned strings.Builder
	cleaned.Grow(len(text))
	for _, c := range text {
		if c == '\n' || c == '\t' || c == '\r' ||
			(c >= 0x0020 && c <= 0x007E) || // ASCII printable
			(c >= 0x0590 && c <= 0x05FF) || // Hebrew
			(c >= 0x0600 && c <= 0x06FF) || // Arabic
			(c >= 0x00A0 && c <= 0x00FF) || // Latin-1 supplement
			unicode.IsSpace(c) {
			cleaned.WriteRune(c)
		}
	}
	text = cleaned.String()

	text = multiSpace.ReplaceAllString(text, " ")
	text = multiNewline.ReplaceAllString(text, "\n\n")

	var result strings.Builder
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			result.WriteString(trimmed)
			result.WriteByte('\n')
		}
	}
	return strings.TrimSpace(result.String())
}

// CleanPageText removes the assumed page header (first line) and footer
// (last two lines) from raw per-page text, then drops blank lines.
func CleanPageText(raw string) string {
	if raw == "" {
		return ""
	}

	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return ""
	}

	start := min(1, len(lines))
	end := max(len(lines)-2, start)
	body := lines[start:end]

	var cleaned strings.Builder
	for _, line := range body {
		if strings.TrimSpace(line) != "" {
			cleaned.WriteString(line)
			cleaned.WriteByte('\n')
		}
	}
	return strings.TrimSpace(cleaned.String())
}

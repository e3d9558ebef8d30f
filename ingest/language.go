package ingest

// Hebrew Unicode block range.
const (
	hebrewStart = 0x0590
	hebrewEnd   = 0x05FF
)

// DetectLanguage classifies the dominant language of text by counting
// Hebrew-block characters against Latin letters. Ties favor Hebrew;
// empty text defaults to English.
func DetectLanguage(text string) string {
	if text == "" {
		return "en"
	}

	hebrewChars := 0
	latinChars := 0
	for _, c := range text {
		switch {
		case c >= hebrewStart && c <= hebrewEnd:
			hebrewChars++
		case (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z'):
			latinChars++
		}
	}

	if hebrewChars >= latinChars {
		return "he"
	}
	return "en"
}

package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyzer/types"
)

func TestBuildDocumentDropsEmptyPagesAndDetectsLanguage(t *testing.T) {
	raw := []types.PageText{
		{Number: 1, Content: "header\nthe first page body has real content on it\nfooter\n1"},
		{Number: 2, Content: "header\nfooter\n2"},
		{Number: 3, Content: "header\nthe third page body also carries content\nfooter\n3"},
	}

	doc := BuildDocument("scan.pdf", raw)

	assert.Equal(t, "scan.pdf", doc.SourceFile)
	assert.Equal(t, "en", doc.Language)
	assert.NotZero(t, doc.ID)

	require.Len(t, doc.Pages, 2, "pages empty after cleaning are dropped")
	assert.Equal(t, 1, doc.Pages[0].Number)
	assert.Equal(t, 3, doc.Pages[1].Number, "surviving pages keep their real page numbers")
}

func TestBuildDocumentHebrew(t *testing.T) {
	raw := []types.PageText{
		{Number: 1, Content: "כותרת\nתוכן העמוד הראשון מופיע כאן בעברית\nתחתית\n1"},
	}

	doc := BuildDocument("he.pdf", raw)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, "he", doc.Language)
}

package api

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"analyzer/ingest"
	"analyzer/llm"
	"analyzer/store"
	"analyzer/types"
)

// DocumentHandler runs the analysis pipeline for uploaded PDF files:
// header/footer cropping, per-page extraction, cleaning, chunking,
// embedding and persistence.
type DocumentHandler struct {
	store      store.Storer
	extractor  ingest.Extractor
	embedder   llm.Embedder
	logger     *slog.Logger
	cropTop    float64
	cropBottom float64
}

func NewDocumentHandler(store store.Storer, extractor ingest.Extractor, embedder llm.Embedder, logger *slog.Logger, cropTop, cropBottom float64) *DocumentHandler {
	return &DocumentHandler{
		store:      store,
		extractor:  extractor,
		embedder:   embedder,
		logger:     logger,
		cropTop:    cropTop,
		cropBottom: cropBottom,
	}
}

// HandleAnalyze accepts one or more files under the "files" field and
// processes each independently. A failing file is reported in its
// result entry and does not abort the rest of the batch.
func (h *DocumentHandler) HandleAnalyze(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return ErrBadRequest()
	}
	files := form.File["files"]
	if len(files) == 0 {
		return NewError(fiber.StatusBadRequest, "no files provided")
	}

	results := make([]types.AnalyzeResult, 0, len(files))
	for _, fileHeader := range files {
		result := types.AnalyzeResult{File: fileHeader.Filename}

		f, err := fileHeader.Open()
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		doc, err := h.analyzeFile(c, fileHeader.Filename, data)
		if err != nil {
			h.logger.Error("document analysis failed", "file", fileHeader.Filename, "error", err)
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		result.Language = doc.language
		result.Chunks = doc.chunkCount
		results = append(results, result)
	}

	return c.JSON(fiber.Map{"results": results})
}

type analyzedDocument struct {
	language   string
	chunkCount int
}

func (h *DocumentHandler) analyzeFile(c *fiber.Ctx, filename string, data []byte) (analyzedDocument, error) {
	ctx := c.Context()

	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		prepared, pages, err := ingest.PreparePDF(data, h.cropTop, h.cropBottom)
		if err != nil {
			return analyzedDocument{}, err
		}
		h.logger.Info("prepared PDF", "file", filename, "pages", pages)
		data = prepared
	}

	doc, err := h.extractor.ExtractPages(ctx, filename, data)
	if err != nil {
		return analyzedDocument{}, err
	}

	chunks := ingest.ChunkDocument(doc)
	h.logger.Info("document chunked", "file", filename, "language", doc.Language,
		"pages", len(doc.Pages), "chunks", len(chunks))

	for i := range chunks {
		embedding, err := h.embedder.Embed(ctx, chunks[i].Content)
		if err != nil {
			return analyzedDocument{}, err
		}
		chunks[i].Embedding = embedding
	}

	if err := h.store.SaveDocument(ctx, doc); err != nil {
		return analyzedDocument{}, err
	}
	if err := h.store.SaveChunks(ctx, chunks); err != nil {
		return analyzedDocument{}, err
	}

	return analyzedDocument{language: doc.Language, chunkCount: len(chunks)}, nil
}

package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// ChatParams is the body of POST /api/v1/chat.
type ChatParams struct {
	ConversationID string `json:"conversation_id" validate:"required,uuid4"`
	Prompt         string `json:"prompt" validate:"required"`
}

func (params *ChatParams) Validate() map[string]string {
	return validateStruct(params)
}

// ConversationParams is the body of POST /api/v1/conversations.
type ConversationParams struct {
	Title string `json:"title"`
}

func (params *ConversationParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(v any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(v); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

// ChatResponse is the answer payload with its citation sources.
type ChatResponse struct {
	Answer     string    `json:"answer"`
	Sources    []Source  `json:"sources"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

type Source struct {
	SourceFile string `json:"source_file"`
	PageNumber int    `json:"page_number"`
	ChunkText  string `json:"chunk_text"`
	Index      int    `json:"index"`
}

// AnalyzeResult reports per-file ingestion outcome. Failed files carry an
// Error and do not abort the rest of the batch.
type AnalyzeResult struct {
	File     string `json:"file"`
	Language string `json:"language,omitempty"`
	Chunks   int    `json:"chunks"`
	Error    string `json:"error,omitempty"`
}

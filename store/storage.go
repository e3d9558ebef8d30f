package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"analyzer/types"
)

// Storer is the persistence surface the HTTP layer depends on.
type Storer interface {
	SaveDocument(ctx context.Context, doc types.Document) error
	SaveChunks(ctx context.Context, chunks []types.RetrievalChunk) error
	Search(ctx context.Context, embedding []float32, limit int) ([]types.RetrievalChunk, error)

	CreateConversation(ctx context.Context, title string) (types.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*types.Conversation, error)
	ListConversations(ctx context.Context) ([]types.Conversation, error)
	DeleteConversation(ctx context.Context, id uuid.UUID) error
	TouchConversation(ctx context.Context, id uuid.UUID) error

	FindTurns(ctx context.Context, conversationID string) ([]types.ConversationTurn, error)
	AppendTurns(ctx context.Context, conversationID string, turns []types.ConversationTurn) error
	DeleteTurns(ctx context.Context, conversationID string) error

	FindSummary(ctx context.Context, conversationID, rangeHash string) (*types.CachedSummary, error)
	SaveSummary(ctx context.Context, summary types.CachedSummary) error
	TouchSummary(ctx context.Context, conversationID, rangeHash string) error
	DeleteSummariesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PostgresStore struct {
	conn *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &PostgresStore{conn: pool}, nil
}

func (s *PostgresStore) Close() {
	s.conn.Close()
}

func (s *PostgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			source_file TEXT NOT NULL,
			language TEXT NOT NULL,
			page_count INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			source_file TEXT NOT NULL,
			page_number INT NOT NULL,
			language TEXT NOT NULL,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			token_estimate INT NOT NULL,
			embedding vector(768)
		)`,
		`CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_active TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id BIGSERIAL PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS conversation_turns_conv_idx ON conversation_turns (conversation_id, id)`,
		`CREATE TABLE IF NOT EXISTS summary_cache (
			conversation_id UUID NOT NULL,
			range_hash TEXT NOT NULL,
			summary_text TEXT NOT NULL,
			message_count INT NOT NULL,
			token_estimate INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			last_accessed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (conversation_id, range_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS summary_cache_accessed_idx ON summary_cache (last_accessed_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveDocument(ctx context.Context, doc types.Document) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO documents (id, source_file, language, page_count, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.SourceFile, doc.Language, len(doc.Pages), doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveChunks(ctx context.Context, chunks []types.RetrievalChunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO chunks (id, document_id, source_file, page_number, language, chunk_index, content, token_estimate, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, c.DocID, c.SourceFile, c.PageNumber, c.Language, c.Index, c.Content, c.TokenEstimate,
			pgvector.NewVector(c.Embedding))
	}
	br := s.conn.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save chunk: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, embedding []float32, limit int) ([]types.RetrievalChunk, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, document_id, source_file, page_number, language, chunk_index, content, token_estimate,
		        embedding <=> $1 AS distance
		 FROM chunks
		 ORDER BY distance
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []types.RetrievalChunk
	for rows.Next() {
		var c types.RetrievalChunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.SourceFile, &c.PageNumber, &c.Language,
			&c.Index, &c.Content, &c.TokenEstimate, &c.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *PostgresStore) CreateConversation(ctx context.Context, title string) (types.Conversation, error) {
	conv := types.Conversation{
		ID:         uuid.New(),
		Title:      title,
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}
	_, err := s.conn.Exec(ctx,
		`INSERT INTO conversations (id, title, created_at, last_active) VALUES ($1, $2, $3, $4)`,
		conv.ID, conv.Title, conv.CreatedAt, conv.LastActive)
	if err != nil {
		return types.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*types.Conversation, error) {
	var conv types.Conversation
	err := s.conn.QueryRow(ctx,
		`SELECT id, title, created_at, last_active FROM conversations WHERE id = $1`, id).
		Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.LastActive)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, title, created_at, last_active FROM conversations ORDER BY last_active DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []types.Conversation
	for rows.Next() {
		var conv types.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.LastActive); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM summary_cache WHERE conversation_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete summaries: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM conversation_turns WHERE conversation_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) TouchConversation(ctx context.Context, id uuid.UUID) error {
	_, err := s.conn.Exec(ctx,
		`UPDATE conversations SET last_active = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindTurns(ctx context.Context, conversationID string) ([]types.ConversationTurn, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT role, content FROM conversation_turns WHERE conversation_id = $1 ORDER BY id`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	var turns []types.ConversationTurn
	for rows.Next() {
		var role string
		var turn types.ConversationTurn
		if err := rows.Scan(&role, &turn.Text); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = types.RoleFromString(role)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *PostgresStore) AppendTurns(ctx context.Context, conversationID string, turns []types.ConversationTurn) error {
	batch := &pgx.Batch{}
	for _, t := range turns {
		batch.Queue(
			`INSERT INTO conversation_turns (conversation_id, role, content) VALUES ($1, $2, $3)`,
			conversationID, string(t.Role), t.Text)
	}
	br := s.conn.SendBatch(ctx, batch)
	defer br.Close()
	for range turns {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) DeleteTurns(ctx context.Context, conversationID string) error {
	_, err := s.conn.Exec(ctx,
		`DELETE FROM conversation_turns WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindSummary(ctx context.Context, conversationID, rangeHash string) (*types.CachedSummary, error) {
	var sum types.CachedSummary
	err := s.conn.QueryRow(ctx,
		`SELECT conversation_id, range_hash, summary_text, message_count, token_estimate, created_at, last_accessed_at
		 FROM summary_cache WHERE conversation_id = $1 AND range_hash = $2`,
		conversationID, rangeHash).
		Scan(&sum.ConversationID, &sum.RangeHash, &sum.SummaryText, &sum.MessageCount,
			&sum.TokenEstimate, &sum.CreatedAt, &sum.LastAccessedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find summary: %w", err)
	}
	return &sum, nil
}

// SaveSummary upserts so concurrent misses on the same range resolve
// last-write-wins.
func (s *PostgresStore) SaveSummary(ctx context.Context, summary types.CachedSummary) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO summary_cache (conversation_id, range_hash, summary_text, message_count, token_estimate, created_at, last_accessed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (conversation_id, range_hash) DO UPDATE SET
			summary_text = EXCLUDED.summary_text,
			message_count = EXCLUDED.message_count,
			token_estimate = EXCLUDED.token_estimate,
			last_accessed_at = EXCLUDED.last_accessed_at`,
		summary.ConversationID, summary.RangeHash, summary.SummaryText,
		summary.MessageCount, summary.TokenEstimate, summary.CreatedAt, summary.LastAccessedAt)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchSummary(ctx context.Context, conversationID, rangeHash string) error {
	_, err := s.conn.Exec(ctx,
		`UPDATE summary_cache SET last_accessed_at = now()
		 WHERE conversation_id = $1 AND range_hash = $2`,
		conversationID, rangeHash)
	if err != nil {
		return fmt.Errorf("failed to touch summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSummariesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.conn.Exec(ctx,
		`DELETE FROM summary_cache WHERE last_accessed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale summaries: %w", err)
	}
	return tag.RowsAffected(), nil
}

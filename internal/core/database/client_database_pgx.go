package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/docqa/internal/config"
	"github.com/markdave123-py/docqa/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		// Append SSL params to the provided DATABASE_URL safely.
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// DB exposes the pool so the pgvector index can share it.
func (c *DatabaseClient) DB() *sql.DB {
	return c.db
}

func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users and quota

// EnsureUser is the upsert-on-first-use for user records. Concurrent callers
// for the same id all succeed and exactly one row exists afterwards.
func (c *DatabaseClient) EnsureUser(ctx context.Context, userID string) error {
	const q = `
		INSERT INTO users (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := c.db.ExecContext(ctx, q, userID)
	return err
}

func (c *DatabaseClient) GetUserQuota(ctx context.Context, userID string) (*models.UserQuota, error) {
	const q = `
		SELECT user_id, name, plan_status, pdf_uploads, question_count, created_at, updated_at
		FROM users WHERE user_id = $1
	`
	var u models.UserQuota
	err := c.db.QueryRowContext(ctx, q, userID).Scan(
		&u.UserID, &u.Name, &u.Plan, &u.PDFUploads, &u.QuestionCount, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *DatabaseClient) UpdateUserName(ctx context.Context, userID, name string) error {
	const q = `
		UPDATE users SET name = $2, updated_at = now()
		WHERE user_id = $1
	`
	res, err := c.db.ExecContext(ctx, q, userID, name)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}

// IncrementIfAllowed bumps counter in a single conditional UPDATE. Postgres
// re-evaluates the WHERE clause after acquiring the row lock, so two
// concurrent requests cannot both pass the ceiling check.
func (c *DatabaseClient) IncrementIfAllowed(ctx context.Context, userID string, counter models.Counter, ceiling int) (bool, error) {
	var col string
	switch counter {
	case models.CounterPDFUploads:
		col = "pdf_uploads"
	case models.CounterQuestions:
		col = "question_count"
	default:
		return false, fmt.Errorf("unknown quota counter %q", counter)
	}
	q := fmt.Sprintf(`
		UPDATE users
		SET %[1]s = %[1]s + 1, updated_at = now()
		WHERE user_id = $1 AND (plan_status = 'paid' OR %[1]s < $2)
		RETURNING %[1]s
	`, col)

	var n int
	err := c.db.QueryRowContext(ctx, q, userID, ceiling).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, file_name, content, storage_url, status, chunk_count, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`
	return c.db.QueryRowContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.Content, doc.StorageURL, doc.Status, doc.ChunkCount,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, content, storage_url, status, chunk_count, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.UserID, &d.FileName, &d.Content, &d.StorageURL, &d.Status, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, storage_url, status, chunk_count, created_at, updated_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.Status, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string, chunkCount int) error {
	const q = `
		UPDATE documents
		SET status = $2, chunk_count = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, chunkCount)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// Chat history

func (c *DatabaseClient) InsertChatTurn(ctx context.Context, turn *models.ChatTurn) error {
	if turn == nil {
		return errors.New("nil chat turn")
	}
	const q = `
		INSERT INTO chat_history (id, user_id, document_id, question, answer, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`
	return c.db.QueryRowContext(ctx, q,
		turn.ID, turn.UserID, turn.DocumentID, turn.Question, turn.Answer,
	).Scan(&turn.CreatedAt)
}

// ListChatTurns returns the user's history oldest first, optionally narrowed to one document.
func (c *DatabaseClient) ListChatTurns(ctx context.Context, userID string, documentID *string) ([]models.ChatTurn, error) {
	const q = `
		SELECT ch.id, ch.user_id, ch.document_id, COALESCE(d.file_name, ''), ch.question, ch.answer, ch.created_at
		FROM chat_history ch
		LEFT JOIN documents d ON ch.document_id = d.id
		WHERE ch.user_id = $1 AND ($2::text IS NULL OR ch.document_id = $2)
		ORDER BY ch.created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, userID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatTurn
	for rows.Next() {
		var (
			t     models.ChatTurn
			docID sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.UserID, &docID, &t.FileName, &t.Question, &t.Answer, &t.CreatedAt); err != nil {
			return nil, err
		}
		if docID.Valid {
			id := docID.String
			t.DocumentID = &id
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

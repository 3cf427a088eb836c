package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/storage/models"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS answer_history (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		question TEXT NOT NULL,
		matched_question TEXT,
		answer TEXT,
		similarity REAL,
		found INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_answers_channel ON answer_history(channel);
	CREATE INDEX IF NOT EXISTS idx_answers_created ON answer_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertAnswerRecord(record *models.AnswerRecord) error {
	query := `
		INSERT INTO answer_history (id, channel, question, matched_question, answer,
			similarity, found, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	found := 0
	if record.Found {
		found = 1
	}

	_, err := c.db.Exec(
		query,
		record.ID,
		record.Channel,
		record.Question,
		record.MatchedQuestion,
		record.Answer,
		record.Similarity,
		found,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert answer record: %w", err)
	}

	logger.Debug("Answer recorded",
		zap.String("answer_id", record.ID),
		zap.String("channel", record.Channel),
		zap.Bool("found", record.Found),
	)

	return nil
}

func (c *Client) ListRecentAnswers(channel string, limit int) ([]models.AnswerRecord, error) {
	query := `
		SELECT id, channel, question, matched_question, answer, similarity, found, latency_ms, created_at
		FROM answer_history
		WHERE channel = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list answer history: %w", err)
	}
	defer rows.Close()

	var records []models.AnswerRecord
	for rows.Next() {
		var r models.AnswerRecord
		var found int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.Channel, &r.Question, &r.MatchedQuestion, &r.Answer,
			&r.Similarity, &found, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Found = found != 0
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, nil
}

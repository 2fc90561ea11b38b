package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quintessa-dev/Automacao-de-editais/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const itemCols = `uid, group_name, source, title, link, deadline_at, published_at,
	agency, region, raw_json, created_at, seen, status, notes, do_not_show`

func scanItem(scan func(dest ...interface{}) error) (models.Item, error) {
	var it models.Item
	var rawJSON []byte
	err := scan(
		&it.UID, &it.Group, &it.Source, &it.Title, &it.Link, &it.DeadlineAt, &it.PublishedAt,
		&it.Agency, &it.Region, &rawJSON, &it.CreatedAt, &it.Seen, &it.Status, &it.Notes, &it.DoNotShow,
	)
	if err != nil {
		return it, err
	}
	if len(rawJSON) > 0 {
		_ = json.Unmarshal(rawJSON, &it.Raw)
	}
	return it, nil
}

// ListItems returns every stored item, oldest first.
func (s *Store) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+itemCols+" FROM items ORDER BY created_at, uid")
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// AppendItems inserts items, skipping uids that already exist. The uid
// primary key is the atomic duplicate check: two concurrent collections
// cannot both insert the same row. Returns the number actually inserted.
func (s *Store) AppendItems(ctx context.Context, items []models.Item) (int, error) {
	inserted := 0
	for _, it := range items {
		var rawJSON []byte
		if it.Raw != nil {
			rawJSON, _ = json.Marshal(it.Raw)
		}
		status := it.Status
		if status == "" {
			status = models.StatusPending
		}
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO items (uid, group_name, source, title, link, deadline_at, published_at,
				agency, region, raw_json, seen, status, notes, do_not_show)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (uid) DO NOTHING
		`, it.UID, it.Group, it.Source, it.Title, it.Link, it.DeadlineAt, it.PublishedAt,
			it.Agency, it.Region, rawJSON, it.Seen, status, it.Notes, it.DoNotShow)
		if err != nil {
			return inserted, fmt.Errorf("inserting item %s: %w", it.UID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ItemUpdate carries the editable fields of one row. Nil means unchanged.
type ItemUpdate struct {
	UID       string  `json:"uid"`
	Seen      *bool   `json:"seen"`
	Status    *string `json:"status"`
	Notes     *string `json:"notes"`
	DoNotShow *bool   `json:"do_not_show"`
}

// UpdateItems applies per-row edits and returns how many rows matched.
func (s *Store) UpdateItems(ctx context.Context, updates []ItemUpdate) (int, error) {
	updated := 0
	for _, u := range updates {
		if u.UID == "" {
			continue
		}
		query := "UPDATE items SET "
		args := []interface{}{}
		i := 1
		add := func(col string, val interface{}) {
			if len(args) > 0 {
				query += ", "
			}
			query += fmt.Sprintf("%s = $%d", col, i)
			args = append(args, val)
			i++
		}
		if u.Seen != nil {
			add("seen", *u.Seen)
		}
		if u.Status != nil {
			status := *u.Status
			if !models.ValidStatus(status) {
				status = models.StatusPending
			}
			add("status", status)
		}
		if u.Notes != nil {
			add("notes", *u.Notes)
		}
		if u.DoNotShow != nil {
			add("do_not_show", *u.DoNotShow)
		}
		if len(args) == 0 {
			continue
		}
		query += fmt.Sprintf(" WHERE uid = $%d", i)
		args = append(args, u.UID)

		tag, err := s.pool.Exec(ctx, query, args...)
		if err != nil {
			return updated, fmt.Errorf("updating item %s: %w", u.UID, err)
		}
		updated += int(tag.RowsAffected())
	}
	return updated, nil
}

// UpdateItemLink rewrites the stored link for one item. Used by the link
// repair pass when an earlier run stored a relative URL.
func (s *Store) UpdateItemLink(ctx context.Context, uid, link string) error {
	_, err := s.pool.Exec(ctx, "UPDATE items SET link = $1 WHERE uid = $2", link, uid)
	if err != nil {
		return fmt.Errorf("updating link for %s: %w", uid, err)
	}
	return nil
}

// DeleteItems removes the given uids and returns how many rows existed.
// A uid that is not present simply contributes zero.
func (s *Store) DeleteItems(ctx context.Context, uids []string) (int, error) {
	if len(uids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM items WHERE uid = ANY($1)", uids)
	if err != nil {
		return 0, fmt.Errorf("deleting items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ClearItems removes every item, keeping the schema in place.
func (s *Store) ClearItems(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM items"); err != nil {
		return fmt.Errorf("clearing items: %w", err)
	}
	return nil
}

// ReadConfig returns all config key/value pairs.
func (s *Store) ReadConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT key, value FROM config")
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	defer rows.Close()

	cfg := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning config: %w", err)
		}
		cfg[k] = v
	}
	return cfg, rows.Err()
}

// UpsertConfig writes the given key/value pairs, inserting or replacing.
func (s *Store) UpsertConfig(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if k == "" {
			continue
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO config (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, k, v)
		if err != nil {
			return fmt.Errorf("upserting config %s: %w", k, err)
		}
	}
	return nil
}

// LogEntry is one persisted log row.
type LogEntry struct {
	TS    time.Time `json:"ts"`
	Level string    `json:"level"`
	Msg   string    `json:"msg"`
}

// AppendLog persists one log line. Failures are swallowed: logging must
// never fail the operation being logged.
func (s *Store) AppendLog(ctx context.Context, level, msg string) {
	_, _ = s.pool.Exec(ctx, "INSERT INTO logs (level, msg) VALUES ($1, $2)", level, msg)
}

// LogsTail returns the most recent n log rows, oldest first.
func (s *Store) LogsTail(ctx context.Context, n int) ([]LogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ts, level, msg FROM (
			SELECT ts, level, msg FROM logs ORDER BY id DESC LIMIT $1
		) t ORDER BY ts
	`, n)
	if err != nil {
		return nil, fmt.Errorf("reading logs: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.TS, &e.Level, &e.Msg); err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PerplexityRun records one AI search or token-count call for cost review.
type PerplexityRun struct {
	Mode      string
	Model     string
	Prompt    string
	Params    map[string]interface{}
	TokensIn  int
	TokensOut int
	CostUSD   float64
	CostBRL   float64
	Summary   string
	Links     string
	Raw       map[string]interface{}
	Error     string
}

func (s *Store) AppendPerplexityRun(ctx context.Context, run PerplexityRun) error {
	var params, raw []byte
	if run.Params != nil {
		params, _ = json.Marshal(run.Params)
	}
	if run.Raw != nil {
		raw, _ = json.Marshal(run.Raw)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO perplexity_runs (mode, model, prompt, params_json, tokens_in, tokens_out,
			cost_usd, cost_brl, summary, links, raw_json, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, run.Mode, run.Model, run.Prompt, params, run.TokensIn, run.TokensOut,
		run.CostUSD, run.CostBRL, run.Summary, run.Links, raw, run.Error)
	if err != nil {
		return fmt.Errorf("recording perplexity run: %w", err)
	}
	return nil
}

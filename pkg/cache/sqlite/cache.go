package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/askdesk/askdesk/pkg/logging"
	"github.com/askdesk/askdesk/pkg/models"
)

// evictionMargin is how many rows beyond the overflow a size-based eviction removes.
const evictionMargin = 100

// Cache is a question/answer cache backed by SQLite. A single connection is
// shared and every operation holds mu, so at most one statement sequence runs
// at a time.
type Cache struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	now    func() time.Time
	log    *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for access bookkeeping and eviction.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for swallowed datastore errors.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.log = l }
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS qa_cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	question TEXT NOT NULL,
	question_key TEXT NOT NULL DEFAULT '',
	answer TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_accessed INTEGER NOT NULL,
	access_count INTEGER DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_question ON qa_cache(question);
CREATE INDEX IF NOT EXISTS idx_last_accessed ON qa_cache(last_accessed);
`

const createKeyIndex = `CREATE INDEX IF NOT EXISTS idx_question_key ON qa_cache(question_key)`

// New opens (creating if needed) the cache database at dbPath.
func New(dbPath string, opts ...Option) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	c := &Cache{db: db, path: dbPath, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// migrate creates the schema. Databases written before question_key existed
// get the column added and filled from the stored questions.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(createCacheTable); err != nil {
		return err
	}

	var hasKey bool
	rows, err := db.Query(`PRAGMA table_info(qa_cache)`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		if name == "question_key" {
			hasKey = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if !hasKey {
		if _, err := db.Exec(`ALTER TABLE qa_cache ADD COLUMN question_key TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}
	if err := backfillKeys(db); err != nil {
		return err
	}
	_, err = db.Exec(createKeyIndex)
	return err
}

func backfillKeys(db *sql.DB) error {
	rows, err := db.Query(`SELECT id, question FROM qa_cache WHERE question_key = ''`)
	if err != nil {
		return err
	}
	keys := make(map[int64]string)
	for rows.Next() {
		var id int64
		var q string
		if err := rows.Scan(&id, &q); err != nil {
			rows.Close()
			return err
		}
		keys[id] = Normalize(q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for id, key := range keys {
		if _, err := db.Exec(`UPDATE qa_cache SET question_key = ? WHERE id = ?`, key, id); err != nil {
			return err
		}
	}
	return nil
}

// Normalize returns the lookup key for a question: trimmed of all Unicode
// whitespace and lower-cased. It is computed in Go and stored alongside the
// question, so SQL comparisons never re-normalize.
func Normalize(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// Lookup returns the cached answer for question. It tries an exact match on
// the normalized question first, then, for questions of more than three
// words, a containment match on the leading and trailing word pairs. A hit
// bumps the matched row's access count. Datastore errors are logged and
// reported as a miss.
func (c *Cache) Lookup(ctx context.Context, question string) (string, bool) {
	key := Normalize(question)
	if key == "" {
		c.misses.Add(1)
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	answer, ok, err := c.lookupExact(ctx, key)
	if err == nil && !ok {
		answer, ok, err = c.lookupFuzzy(ctx, key)
	}
	if err != nil {
		c.log.Error("cache lookup failed", zap.Error(err), zap.String("question", logging.Truncate(question, 50)))
		c.misses.Add(1)
		return "", false
	}
	if !ok {
		c.misses.Add(1)
		return "", false
	}

	c.hits.Add(1)
	return answer, true
}

func (c *Cache) lookupExact(ctx context.Context, key string) (string, bool, error) {
	var answer string
	var accessCount int64
	err := c.db.QueryRowContext(ctx,
		`SELECT answer, access_count FROM qa_cache
		 WHERE question_key = ?
		 ORDER BY last_accessed DESC LIMIT 1`,
		key,
	).Scan(&answer, &accessCount)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("exact lookup: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`UPDATE qa_cache SET last_accessed = ?, access_count = ? WHERE question_key = ?`,
		c.now().Unix(), accessCount+1, key,
	)
	if err != nil {
		return "", false, fmt.Errorf("bump exact hit: %w", err)
	}

	c.log.Info("cache hit", zap.String("question", logging.Truncate(key, 50)))
	return answer, true, nil
}

type fuzzyCandidate struct {
	id          int64
	question    string
	answer      string
	accessCount int64
}

func (c *Cache) lookupFuzzy(ctx context.Context, key string) (string, bool, error) {
	words := strings.Fields(key)
	if len(words) <= 3 {
		return "", false, nil
	}

	head := likePattern(words[0], words[1])
	tail := likePattern(words[len(words)-2], words[len(words)-1])

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, question, answer, access_count FROM qa_cache
		 WHERE question_key LIKE ? ESCAPE '\' OR question_key LIKE ? ESCAPE '\'
		 ORDER BY access_count DESC, last_accessed DESC
		 LIMIT 5`,
		head, tail,
	)
	if err != nil {
		return "", false, fmt.Errorf("fuzzy lookup: %w", err)
	}

	var best *fuzzyCandidate
	for rows.Next() {
		var fc fuzzyCandidate
		if err := rows.Scan(&fc.id, &fc.question, &fc.answer, &fc.accessCount); err != nil {
			rows.Close()
			return "", false, fmt.Errorf("scan fuzzy candidate: %w", err)
		}
		if best == nil || fc.accessCount > best.accessCount {
			best = &fc
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return "", false, fmt.Errorf("fuzzy lookup: %w", err)
	}
	rows.Close()

	if best == nil {
		return "", false, nil
	}

	_, err = c.db.ExecContext(ctx,
		`UPDATE qa_cache SET last_accessed = ?, access_count = ? WHERE id = ?`,
		c.now().Unix(), best.accessCount+1, best.id,
	)
	if err != nil {
		return "", false, fmt.Errorf("bump fuzzy hit: %w", err)
	}

	c.log.Info("fuzzy cache hit",
		zap.String("question", logging.Truncate(key, 50)),
		zap.String("matched", logging.Truncate(best.question, 50)),
	)
	return best.answer, true, nil
}

// likePattern builds %a%b% with LIKE metacharacters in a and b escaped.
func likePattern(a, b string) string {
	esc := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + esc.Replace(a) + "%" + esc.Replace(b) + "%"
}

// Store saves an answer. An existing row with the same normalized question is
// overwritten and its access count bumped; otherwise a new row is inserted.
func (c *Cache) Store(ctx context.Context, question, answer string) error {
	key := Normalize(question)
	if key == "" {
		return errors.New("cache store: empty question")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	defer tx.Rollback()

	now := c.now().Unix()
	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM qa_cache WHERE question_key = ? LIMIT 1`, key,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO qa_cache (question, question_key, answer, created_at, last_accessed, access_count)
			 VALUES (?, ?, ?, ?, ?, 1)`,
			question, key, answer, now, now,
		)
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE qa_cache SET answer = ?, last_accessed = ?, access_count = access_count + 1 WHERE id = ?`,
			answer, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache store commit: %w", err)
	}
	c.log.Info("cached answer", zap.String("question", logging.Truncate(question, 50)))
	return nil
}

// Evict removes stale or unpopular rows and returns how many were deleted.
// When the table holds at most maxEntries rows, rows not accessed for
// maxAgeDays are removed. Otherwise age is ignored and the
// total-maxEntries+100 least used rows (oldest first among equals) go.
func (c *Cache) Evict(ctx context.Context, maxAgeDays, maxEntries int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("cache evict: %w", err)
	}
	defer tx.Rollback()

	var total int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM qa_cache`).Scan(&total); err != nil {
		return 0, fmt.Errorf("cache evict count: %w", err)
	}

	var res sql.Result
	if total <= int64(maxEntries) {
		cutoff := c.now().Unix() - int64(maxAgeDays)*86400
		res, err = tx.ExecContext(ctx, `DELETE FROM qa_cache WHERE last_accessed < ?`, cutoff)
	} else {
		res, err = tx.ExecContext(ctx,
			`DELETE FROM qa_cache WHERE id IN (
				SELECT id FROM qa_cache
				ORDER BY access_count ASC, last_accessed ASC
				LIMIT ?
			)`,
			total-int64(maxEntries)+evictionMargin,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("cache evict: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache evict: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("cache evict commit: %w", err)
	}

	if total <= int64(maxEntries) {
		c.log.Info("cleaned old cache entries", zap.Int64("deleted", deleted), zap.Int("max_age_days", maxAgeDays))
	} else {
		c.log.Info("cleaned least accessed cache entries", zap.Int64("deleted", deleted), zap.Int64("total", total))
	}
	return deleted, nil
}

// Stats returns cache contents and hit/miss counters.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stats models.CacheStats
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM qa_cache`).Scan(&stats.Entries); err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}

	popular, err := c.questionStats(ctx, `ORDER BY access_count DESC, last_accessed DESC`)
	if err != nil {
		return models.CacheStats{}, err
	}
	recent, err := c.questionStats(ctx, `ORDER BY last_accessed DESC`)
	if err != nil {
		return models.CacheStats{}, err
	}

	stats.Popular = popular
	stats.Recent = recent
	stats.Hits = c.hits.Load()
	stats.Misses = c.misses.Load()
	if fi, err := os.Stat(c.path); err == nil {
		stats.SizeMB = math.Round(float64(fi.Size())/(1024*1024)*100) / 100
	}
	return stats, nil
}

func (c *Cache) questionStats(ctx context.Context, order string) ([]models.QuestionStat, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT question, access_count, last_accessed FROM qa_cache `+order+` LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close()

	var out []models.QuestionStat
	for rows.Next() {
		var qs models.QuestionStat
		if err := rows.Scan(&qs.Question, &qs.AccessCount, &qs.LastAccessed); err != nil {
			return nil, fmt.Errorf("scan cache stat: %w", err)
		}
		out = append(out, qs)
	}
	return out, rows.Err()
}

// List returns up to limit entries, most recently accessed first.
// A limit <= 0 returns every entry.
func (c *Cache) List(ctx context.Context, limit int) ([]models.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, question, answer, created_at, last_accessed, access_count
		 FROM qa_cache ORDER BY last_accessed DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("cache list: %w", err)
	}
	defer rows.Close()

	var out []models.CacheEntry
	for rows.Next() {
		var e models.CacheEntry
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.CreatedAt, &e.LastAccessed, &e.AccessCount); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear removes every cache entry.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM qa_cache`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

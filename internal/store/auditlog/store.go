package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

type Status string

const (
	StatusReceived   Status = "received"
	StatusDuplicate  Status = "duplicate"
	StatusParseError Status = "parse_error"
	StatusRejected   Status = "rejected"
	StatusFailed     Status = "failed"
)

// Entry 是一次 webhook 请求的原始审计记录，无论解析是否成功都会写入。
type Entry struct {
	ID           int64     `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Broker       string    `json:"broker"`
	Identifier   string    `json:"identifier"`
	SourceIP     string    `json:"source_ip"`
	Status       Status    `json:"status"`
	AlertKind    string    `json:"alert_kind,omitempty"`
	Symbol       string    `json:"symbol,omitempty"`
	RecordID     uint64    `json:"record_id,omitempty"`
	TradeGroupID string    `json:"trade_group_id,omitempty"`
	Body         string    `json:"body"`
	Error        string    `json:"error,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Query 用于筛选审计记录。
type Query struct {
	Broker string
	Status Status
	Symbol string
	Limit  int
	Offset int
}

// Store 管理 webhook 审计日志，方便后续排查。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// New 初始化 SQLite 存储。
func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close 关闭底层 DB。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ping checks that the audit database still answers.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("audit log store 已关闭")
	}
	return s.db, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS webhook_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			broker TEXT NOT NULL,
			identifier TEXT,
			source_ip TEXT,
			status TEXT NOT NULL,
			alert_kind TEXT,
			symbol TEXT,
			record_id INTEGER,
			trade_group_id TEXT,
			body TEXT,
			error TEXT,
			received_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_audit_owner_ts ON webhook_audit(owner_id, received_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_audit_owner_status ON webhook_audit(owner_id, status);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert 写入一条审计记录并返回自增 ID。
func (s *Store) Insert(ctx context.Context, e Entry) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = StatusReceived
	}
	res, err := db.ExecContext(ctx, `INSERT INTO webhook_audit
		(owner_id, broker, identifier, source_ip, status, alert_kind, symbol, record_id, trade_group_id, body, error, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OwnerID, strings.ToLower(e.Broker), e.Identifier, e.SourceIP, string(e.Status), e.AlertKind,
		strings.ToUpper(e.Symbol), int64(e.RecordID), e.TradeGroupID, e.Body, e.Error, e.ReceivedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert audit entry: %w", err)
	}
	return res.LastInsertId()
}

// List 按时间倒序返回审计记录及总数。
func (s *Store) List(ctx context.Context, owner string, q Query) ([]Entry, int64, error) {
	db, err := s.conn()
	if err != nil {
		return nil, 0, err
	}
	where := []string{"owner_id = ?"}
	args := []interface{}{owner}
	if broker := strings.TrimSpace(q.Broker); broker != "" {
		where = append(where, "broker = ?")
		args = append(args, strings.ToLower(broker))
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if sym := strings.TrimSpace(q.Symbol); sym != "" {
		where = append(where, "symbol LIKE ?")
		args = append(args, "%"+strings.ToUpper(sym)+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM webhook_audit WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := db.QueryContext(ctx, `SELECT id, owner_id, broker, identifier, source_ip, status, alert_kind, symbol,
		record_id, trade_group_id, body, error, received_at
		FROM webhook_audit WHERE `+cond+` ORDER BY received_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                                      Entry
			identifier, sourceIP, kind, symbol, groupID, body, msg sql.NullString
			recordID                                               sql.NullInt64
			status                                                 string
			ts                                                     int64
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Broker, &identifier, &sourceIP, &status, &kind, &symbol,
			&recordID, &groupID, &body, &msg, &ts); err != nil {
			return nil, 0, err
		}
		e.Identifier = identifier.String
		e.SourceIP = sourceIP.String
		e.Status = Status(status)
		e.AlertKind = kind.String
		e.Symbol = symbol.String
		e.RecordID = uint64(recordID.Int64)
		e.TradeGroupID = groupID.String
		e.Body = body.String
		e.Error = msg.String
		e.ReceivedAt = time.UnixMilli(ts).UTC()
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// StatusCounts 统计各状态的审计记录数量。
func (s *Store) StatusCounts(ctx context.Context, owner string) (map[Status]int64, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM webhook_audit WHERE owner_id = ? GROUP BY status`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[Status]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/John-Robertt/infobar/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion 变更 schema 时递增；旧库需要删除后重建。
const schemaVersion = 1

// timeLayout 固定宽度，保证按字符串排序即按时间排序。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FileName 是历史库的默认文件名（与设置文件同目录）。
const FileName = "history.db"

// ErrSchemaMismatch 表示数据库 schema 版本与当前程序不一致。
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrRunNotFound 表示 run_id 不存在。
var ErrRunNotFound = errors.New("run not found")

// Store 把每次 dispatch 的 RunReport 持久化到 SQLite。
type Store struct {
	db   *sql.DB
	path string
}

// Open 打开（必要时创建）历史库。
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path 返回数据库文件路径。
func (s *Store) Path() string { return s.path }

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record 在一个事务内写入 run 及其所有 task。
func (s *Store) Record(ctx context.Context, rr domain.RunReport) error {
	if rr.RunID == "" {
		return errors.New("record run: empty run_id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, root, dry_run, started_at, finished_at, total, processed, failed, skipped, planned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rr.RunID, rr.Root, boolToInt(rr.DryRun),
		rr.StartedAt.UTC().Format(timeLayout), rr.FinishedAt.UTC().Format(timeLayout),
		rr.Summary.Total, rr.Summary.Processed, rr.Summary.Failed, rr.Summary.Skipped, rr.Summary.Planned,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, t := range rr.Tasks {
		args, err := json.Marshal(t.Args)
		if err != nil {
			return fmt.Errorf("encode args: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO tasks
			(run_id, idx, input, output, args_json, status, exit_code, duration_ms, error_code, error_msg, output_tail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rr.RunID, t.Index, t.Input, t.Output, string(args), t.Status,
			t.ExitCode, t.DurationMS, t.ErrorCode, t.ErrorMsg, t.OutputTail,
		)
		if err != nil {
			return fmt.Errorf("insert task %d: %w", t.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record tx: %w", err)
	}
	return nil
}

// ListRuns 返回最近的 run（不含 tasks），按开始时间倒序。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, root, dry_run, started_at, finished_at,
		total, processed, failed, skipped, planned
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RunReport, 0, limit)
	for rows.Next() {
		rr, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

// Get 返回单个 run 及其所有 tasks。
func (s *Store) Get(ctx context.Context, runID string) (domain.RunReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, root, dry_run, started_at, finished_at,
		total, processed, failed, skipped, planned
		FROM runs WHERE id = ?`, runID)
	rr, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RunReport{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return domain.RunReport{}, err
	}

	tasks, err := s.Tasks(ctx, runID)
	if err != nil {
		return domain.RunReport{}, err
	}
	rr.Tasks = tasks
	return rr, nil
}

// Tasks 返回某个 run 的全部 task 结果，按 index 排序。
func (s *Store) Tasks(ctx context.Context, runID string) ([]domain.TaskResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT idx, input, output, args_json, status,
		exit_code, duration_ms, error_code, error_msg, output_tail
		FROM tasks WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	out := []domain.TaskResult{}
	for rows.Next() {
		var (
			t    domain.TaskResult
			args string
		)
		if err := rows.Scan(&t.Index, &t.Input, &t.Output, &args, &t.Status,
			&t.ExitCode, &t.DurationMS, &t.ErrorCode, &t.ErrorMsg, &t.OutputTail); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &t.Args); err != nil {
			return nil, fmt.Errorf("decode args: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (domain.RunReport, error) {
	var (
		rr                domain.RunReport
		dryRun            int
		started, finished string
	)
	if err := r.Scan(&rr.RunID, &rr.Root, &dryRun, &started, &finished,
		&rr.Summary.Total, &rr.Summary.Processed, &rr.Summary.Failed, &rr.Summary.Skipped, &rr.Summary.Planned); err != nil {
		return domain.RunReport{}, err
	}
	rr.DryRun = dryRun != 0
	var err error
	if rr.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return domain.RunReport{}, fmt.Errorf("parse started_at: %w", err)
	}
	if rr.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return domain.RunReport{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return rr, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

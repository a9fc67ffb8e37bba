package surge

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	xerrors "HealthForce-Goa/internal/errors"
	sqlstore "HealthForce-Goa/internal/storage/mysql"
)

const runColumns = `id, location_zone, requested_time, status, progress, result, last_error, error_code,
        attempts, max_retries, created_at, updated_at`

// MySQLStore 使用 MySQL 记录运行状态，表结构由 deploy/migrations 维护。
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore 建立连接池、执行迁移并返回 MySQLStore。
func NewMySQLStore(ctx context.Context, cfg sqlstore.Config) (*MySQLStore, error) {
	db, err := sqlstore.Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	if err := sqlstore.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行数据库迁移失败")
	}
	return NewMySQLStoreFromDB(db), nil
}

// NewMySQLStoreFromDB 包装已就绪的连接池，不执行迁移。
func NewMySQLStoreFromDB(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: time.Now}
}

// Create 插入新的运行记录。
func (s *MySQLStore) Create(ctx context.Context, run *Run) error {
	if run == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "run 不能为空")
	}
	if strings.TrimSpace(run.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "运行 ID 不能为空")
	}
	now := s.now().UnixMilli()
	if run.CreatedAt == 0 {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = StatusPending
	}

	const stmt = `INSERT INTO surge_runs
        (id, location_zone, requested_time, status, progress, result, last_error, error_code, attempts, max_retries, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, NULL, NULL, '', ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		run.ID,
		run.LocationZone,
		run.CurrentTime,
		string(run.Status),
		run.Progress,
		run.Attempts,
		run.MaxRetries,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysqldriver.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrRunConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入运行记录失败")
	}
	return nil
}

// Get 查询指定运行。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM surge_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询运行记录失败")
	}
	return run, nil
}

// Claim 以条件更新的方式抢占运行，保证同一运行只会被一个 worker 执行。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Run, error) {
	const stmt = `UPDATE surge_runs SET status = ?, attempts = attempts + 1, progress = ?, updated_at = ?
        WHERE id = ? AND status = ? AND (max_retries = 0 OR attempts < max_retries)`

	res, err := s.db.ExecContext(ctx, stmt, string(StatusRunning), "Initializing agents...", s.now().UnixMilli(), id, string(StatusPending))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "领取运行失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取影响行数失败")
	}

	run, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if affected == 0 {
		if run.Status == StatusPending {
			return run, ErrRunExhausted
		}
		return run, ErrRunConflict
	}
	return run, nil
}

// UpdateProgress 记录当前阶段。
func (s *MySQLStore) UpdateProgress(ctx context.Context, id string, progress string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE surge_runs SET progress = ?, updated_at = ? WHERE id = ? AND status = ?`,
		progress, s.now().UnixMilli(), id, string(StatusRunning))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新运行进度失败")
	}
	return s.classifyNoop(ctx, res, id, ErrRunConflict)
}

// MarkCompleted 记录成功结果。
func (s *MySQLStore) MarkCompleted(ctx context.Context, id string, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码运行结果失败")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE surge_runs SET status = ?, result = ?, progress = ?, last_error = NULL, error_code = '', updated_at = ?
        WHERE id = ?`, string(StatusCompleted), string(payload), "Analysis complete", s.now().UnixMilli(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入运行结果失败")
	}
	return s.classifyNoop(ctx, res, id, nil)
}

// MarkFailed 标记运行失败或退回待重试。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	status := StatusFailed
	var progress any
	if !terminal {
		status = StatusPending
		progress = "Retrying..."
	}
	res, err := s.db.ExecContext(ctx, `UPDATE surge_runs SET status = ?, progress = COALESCE(?, progress), last_error = ?, error_code = ?, updated_at = ?
        WHERE id = ?`, string(status), progress, lastError, string(code), s.now().UnixMilli(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入失败状态出错")
	}
	return s.classifyNoop(ctx, res, id, nil)
}

// List 返回符合条件的运行。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Run, error) {
	var (
		clauses []string
		args    []any
	)
	if opts.Zone != "" {
		clauses = append(clauses, "location_zone = ?")
		args = append(args, opts.Zone)
	}
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT ` + runColumns + ` FROM surge_runs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if opts.Order == NewestFirst {
		query += " ORDER BY created_at DESC, id DESC"
	} else {
		query += " ORDER BY created_at ASC, id ASC"
	}
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询运行列表失败")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析运行记录失败")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历运行记录失败")
	}
	return runs, nil
}

// RecordApproval 追加审批记录。
func (s *MySQLStore) RecordApproval(ctx context.Context, approval Approval) error {
	if approval.DecidedAt == 0 {
		approval.DecidedAt = s.now().UnixMilli()
	}
	var plan any
	if approval.ModifiedPlan != nil {
		plan = *approval.ModifiedPlan
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO surge_approvals (run_id, approved, modified_plan, decided_at) VALUES (?, ?, ?, ?)`,
		approval.RunID, approval.Approved, plan, approval.DecidedAt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入审批记录失败")
	}
	return nil
}

// Close 关闭连接池。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// classifyNoop 在更新未命中任何行时区分“不存在”与“状态不符”。
func (s *MySQLStore) classifyNoop(ctx context.Context, res sql.Result, id string, stateErr error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取影响行数失败")
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return stateErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (*Run, error) {
	var (
		run       Run
		status    string
		result    sql.NullString
		lastError sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.LocationZone,
		&run.CurrentTime,
		&status,
		&run.Progress,
		&result,
		&lastError,
		&run.ErrorCode,
		&run.Attempts,
		&run.MaxRetries,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		return nil, err
	}
	run.Status = Status(status)
	run.LastError = lastError.String
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &run.Result); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

var _ Store = (*MySQLStore)(nil)

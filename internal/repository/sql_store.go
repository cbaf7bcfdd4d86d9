package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"organoid-qc/internal/logger"
	"organoid-qc/pkg/models"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS experiments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		experiment_id INTEGER NOT NULL REFERENCES experiments(id),
		filename TEXT NOT NULL,
		focus_score REAL NOT NULL,
		contrast_level REAL NOT NULL,
		exposure_level REAL NOT NULL,
		is_ml_ready INTEGER NOT NULL,
		quality_reason TEXT NOT NULL,
		organoid_diameter REAL,
		organoid_shape_regularity REAL,
		imaging_session_id TEXT,
		microscope_id TEXT,
		operator_id TEXT,
		acquisition_time TIMESTAMP NOT NULL,
		width INTEGER,
		height INTEGER,
		file_path TEXT,
		thumbnail_path TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_images_experiment ON images(experiment_id)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS experiments (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		created_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS images (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		experiment_id BIGINT NOT NULL,
		filename VARCHAR(512) NOT NULL,
		focus_score DOUBLE NOT NULL,
		contrast_level DOUBLE NOT NULL,
		exposure_level DOUBLE NOT NULL,
		is_ml_ready TINYINT(1) NOT NULL,
		quality_reason VARCHAR(255) NOT NULL,
		organoid_diameter DOUBLE NULL,
		organoid_shape_regularity DOUBLE NULL,
		imaging_session_id VARCHAR(255) NULL,
		microscope_id VARCHAR(255) NULL,
		operator_id VARCHAR(255) NULL,
		acquisition_time DATETIME(6) NOT NULL,
		width INT NULL,
		height INT NULL,
		file_path VARCHAR(1024) NULL,
		thumbnail_path VARCHAR(1024) NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_images_experiment (experiment_id),
		FOREIGN KEY (experiment_id) REFERENCES experiments(id)
	)`,
}

const imageColumns = `id, experiment_id, filename, focus_score, contrast_level, exposure_level,
	is_ml_ready, quality_reason, organoid_diameter, organoid_shape_regularity,
	imaging_session_id, microscope_id, operator_id, acquisition_time,
	width, height, file_path, thumbnail_path, created_at`

// SQLStore persists experiments and images through database/sql. Both the
// sqlite and mysql drivers accept "?" placeholders so queries are shared.
type SQLStore struct {
	DB     *sql.DB
	driver string
	now    func() time.Time
}

// New opens the database and makes sure the schema exists.
func New(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, DriverMySQL:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY under concurrent uploads.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{DB: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"driver": driver,
	}).Info("Database ready")
	return s, nil
}

func (s *SQLStore) ensureSchema() error {
	stmts := sqliteSchema
	if s.driver == DriverMySQL {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.DB.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return nil
}

func (s *SQLStore) CreateExperiment(ctx context.Context, name string) (*models.Experiment, error) {
	created := s.now()
	res, err := s.DB.ExecContext(ctx, `INSERT INTO experiments (name, created_at) VALUES (?, ?)`, name, created)
	if err != nil {
		return nil, fmt.Errorf("insert experiment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Experiment{ID: id, Name: name, CreatedAt: created}, nil
}

func (s *SQLStore) ListExperiments(ctx context.Context) ([]models.Experiment, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, created_at FROM experiments ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	out := []models.Experiment{}
	for rows.Next() {
		var e models.Experiment
		var created dbTime
		if err := rows.Scan(&e.ID, &e.Name, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = created.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetExperiment(ctx context.Context, id int64) (*models.Experiment, error) {
	var e models.Experiment
	var created dbTime
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, created_at FROM experiments WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExperimentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	e.CreatedAt = created.Time
	return &e, nil
}

func (s *SQLStore) DeleteExperiment(ctx context.Context, id int64) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var exists int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiments WHERE id = ?`, id).Scan(&exists); err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, ErrExperimentNotFound
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM images WHERE experiment_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete images: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("delete experiment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *SQLStore) InsertImage(ctx context.Context, rec *models.ImageRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if rec.AcquisitionTime.IsZero() {
		rec.AcquisitionTime = rec.CreatedAt
	}
	m := rec.Metrics

	res, err := s.DB.ExecContext(ctx, `INSERT INTO images (`+strings.TrimPrefix(imageColumns, "id, ")+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ExperimentID, rec.Filename, m.FocusScore, m.ContrastLevel, m.ExposureLevel,
		rec.Verdict.IsReady, rec.Verdict.ReasonString(),
		nullFloat(m.OrganoidDiameter), nullFloat(m.OrganoidCircularity),
		nullString(rec.ImagingSessionID), nullString(rec.MicroscopeID), nullString(rec.OperatorID),
		rec.AcquisitionTime.UTC(), nullInt(m.Width), nullInt(m.Height),
		nullString(rec.FilePath), nullString(rec.ThumbnailPath), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	rec.ID = id
	return id, nil
}

func (s *SQLStore) GetImage(ctx context.Context, id int64) (*models.ImageRecord, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	rec, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) ListImages(ctx context.Context, experimentID int64, order ImageOrder) ([]models.ImageRecord, error) {
	var orderBy string
	switch order {
	case OldestFirst:
		orderBy = "created_at ASC, id ASC"
	case FocusDesc:
		orderBy = "focus_score DESC, id ASC"
	default:
		orderBy = "created_at DESC, id DESC"
	}
	return s.queryImages(ctx, `SELECT `+imageColumns+` FROM images WHERE experiment_id = ? ORDER BY `+orderBy, experimentID)
}

func (s *SQLStore) ListMLReady(ctx context.Context, experimentID int64) ([]models.ImageRecord, error) {
	return s.queryImages(ctx, `SELECT `+imageColumns+` FROM images
		WHERE experiment_id = ? AND is_ml_ready = ? ORDER BY focus_score DESC, id ASC`, experimentID, true)
}

func (s *SQLStore) DeleteAllImages(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM images`)
	if err != nil {
		return 0, fmt.Errorf("clear images: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) CountImages(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n)
	return n, err
}

func (s *SQLStore) queryImages(ctx context.Context, query string, args ...interface{}) ([]models.ImageRecord, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	out := []models.ImageRecord{}
	for rows.Next() {
		rec, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanImage(row scanner) (*models.ImageRecord, error) {
	var (
		rec                     models.ImageRecord
		reason                  string
		diameter, circularity   sql.NullFloat64
		session, microscope, op sql.NullString
		width, height           sql.NullInt64
		filePath, thumbPath     sql.NullString
		acquired, created       dbTime
	)
	err := row.Scan(&rec.ID, &rec.ExperimentID, &rec.Filename,
		&rec.Metrics.FocusScore, &rec.Metrics.ContrastLevel, &rec.Metrics.ExposureLevel,
		&rec.Verdict.IsReady, &reason, &diameter, &circularity,
		&session, &microscope, &op, &acquired,
		&width, &height, &filePath, &thumbPath, &created)
	if err != nil {
		return nil, err
	}

	rec.Verdict.Reasons = models.ParseReasons(reason)
	if diameter.Valid {
		rec.Metrics.OrganoidDiameter = models.Float64Ptr(diameter.Float64)
	}
	if circularity.Valid {
		rec.Metrics.OrganoidCircularity = models.Float64Ptr(circularity.Float64)
	}
	if width.Valid {
		rec.Metrics.Width = models.IntPtr(int(width.Int64))
	}
	if height.Valid {
		rec.Metrics.Height = models.IntPtr(int(height.Int64))
	}
	rec.ImagingSessionID = session.String
	rec.MicroscopeID = microscope.String
	rec.OperatorID = op.String
	rec.FilePath = filePath.String
	rec.ThumbnailPath = thumbPath.String
	rec.AcquisitionTime = acquired.Time
	rec.CreatedAt = created.Time
	return &rec, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// dbTime scans timestamps from either driver. mysql with parseTime hands
// back time.Time, sqlite may return text depending on the column type.
type dbTime struct {
	Time time.Time
}

func (t *dbTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (t *dbTime) parse(s string) error {
	s = strings.TrimSpace(s)
	// time.Time.String() may append a monotonic clock reading.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

package student

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"student-records/internal/db"
	"student-records/internal/metrics"

	"github.com/uptrace/bun"
)

const (
	tableStudents    = "students"
	studentsEmailKey = "students_email_key"
)

// Repository is the record store for master and extension rows.
type Repository interface {
	// RunInTx runs fn against a repository bound to one transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	CreateMaster(ctx context.Context, m *Master) (int64, error)
	AssignIdentifier(ctx context.Context, key int64, uid string) error
	FindMasterByEmail(ctx context.Context, email string) (*Master, error)
	FindMasterByIdentifier(ctx context.Context, uid string) (*Master, error)
	LockMaster(ctx context.Context, uid string) (*Master, error)
	ListMasters(ctx context.Context) ([]Master, error)
	EmailTaken(ctx context.Context, email, exceptUID string) (bool, error)
	UpdateMaster(ctx context.Context, uid string, m *Master, photo []byte, policy UpdatePolicy) (*Master, error)
	SetStage(ctx context.Context, uid string, stage Stage) error
	DeleteMaster(ctx context.Context, uid string) error

	CreateExtension(ctx context.Context, ext Extension) error
	ReplaceExtension(ctx context.Context, ext Extension, policy UpdatePolicy) error
	ListExtensions(ctx context.Context, uid string) (*Extensions, error)
	DeleteExtensions(ctx context.Context, uid string) error
}

// Models returns the tables owned by the record store, in creation order.
func Models() []interface{} {
	return []interface{}{
		(*Master)(nil),
		(*FeeLedger)(nil),
		(*AttendanceRecord)(nil),
		(*SemesterRecord)(nil),
	}
}

type repository struct {
	conn    bun.IDB
	metrics *metrics.Metrics
}

func NewRepository(conn *bun.DB, m *metrics.Metrics) Repository {
	return &repository{
		conn:    conn,
		metrics: m,
	}
}

func (r *repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	database, ok := r.conn.(*bun.DB)
	if !ok {
		// already inside a transaction
		return fn(ctx, r)
	}
	err := database.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &repository{conn: tx, metrics: r.metrics})
	})
	return storeErr("transaction", err)
}

func (r *repository) CreateMaster(ctx context.Context, m *Master) (int64, error) {
	start := time.Now()
	_, err := r.conn.NewInsert().Model(m).Returning("id").Exec(ctx)

	r.metrics.RecordQuery(ctx, "insert", tableStudents, time.Since(start), err)

	if err != nil {
		if db.IsUniqueViolation(err, studentsEmailKey) {
			return 0, ErrDuplicateEmail
		}
		return 0, storeErr("create master", err)
	}
	return m.ID, nil
}

// AssignIdentifier sets the public identifier once; a row that already has one is left alone.
func (r *repository) AssignIdentifier(ctx context.Context, key int64, uid string) error {
	start := time.Now()
	result, err := r.conn.NewUpdate().
		Model((*Master)(nil)).
		Set("student_uid = ?", uid).
		Where("id = ?", key).
		Where("student_uid IS NULL").
		Exec(ctx)

	r.metrics.RecordQuery(ctx, "update", tableStudents, time.Since(start), err)

	if err != nil {
		return storeErr("assign identifier", err)
	}
	if err := requireAffected(result); err != nil {
		return fmt.Errorf("%w: identifier already assigned for key %d", ErrInvalidStage, key)
	}
	return nil
}

func (r *repository) FindMasterByEmail(ctx context.Context, email string) (*Master, error) {
	return r.findMaster(ctx, "email = ?", email)
}

func (r *repository) FindMasterByIdentifier(ctx context.Context, uid string) (*Master, error) {
	return r.findMaster(ctx, "student_uid = ?", uid)
}

func (r *repository) findMaster(ctx context.Context, where string, arg interface{}) (*Master, error) {
	start := time.Now()
	m := new(Master)
	err := r.conn.NewSelect().Model(m).Where(where, arg).Limit(1).Scan(ctx)

	r.metrics.RecordQuery(ctx, "select", tableStudents, time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, storeErr("find master", err)
	}
	return m, nil
}

// LockMaster loads the row with SELECT ... FOR UPDATE. Only meaningful inside RunInTx.
func (r *repository) LockMaster(ctx context.Context, uid string) (*Master, error) {
	start := time.Now()
	m := new(Master)
	err := r.conn.NewSelect().
		Model(m).
		Column("id", "student_uid", "email", "stage").
		Where("student_uid = ?", uid).
		For("UPDATE").
		Scan(ctx)

	r.metrics.RecordQuery(ctx, "select_for_update", tableStudents, time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, storeErr("lock master", err)
	}
	return m, nil
}

// ListMasters returns every master row without the photo column.
func (r *repository) ListMasters(ctx context.Context) ([]Master, error) {
	start := time.Now()
	masters := make([]Master, 0)
	err := r.conn.NewSelect().
		Model(&masters).
		ExcludeColumn("photo").
		Order("id ASC").
		Scan(ctx)

	r.metrics.RecordQuery(ctx, "select", tableStudents, time.Since(start), err)

	if err != nil {
		return nil, storeErr("list masters", err)
	}
	return masters, nil
}

func (r *repository) EmailTaken(ctx context.Context, email, exceptUID string) (bool, error) {
	start := time.Now()
	exists, err := r.conn.NewSelect().
		Model((*Master)(nil)).
		Where("email = ?", email).
		Where("student_uid IS DISTINCT FROM ?", exceptUID).
		Exists(ctx)

	r.metrics.RecordQuery(ctx, "select", tableStudents, time.Since(start), err)

	if err != nil {
		return false, storeErr("check email", err)
	}
	return exists, nil
}

// UpdateMaster overwrites every text field of the row identified by uid and
// returns the stored row without its photo. The photo follows policy when
// photo is nil. The key, identifier, stage and creation time are never written.
func (r *repository) UpdateMaster(ctx context.Context, uid string, m *Master, photo []byte, policy UpdatePolicy) (*Master, error) {
	excluded := []string{"id", "student_uid", "stage", "created_at"}
	m.Photo = photo
	if photo == nil && policy == CoalesceIfAbsent {
		excluded = append(excluded, "photo")
	}
	m.UpdatedAt = time.Now()

	start := time.Now()
	updated := new(Master)
	_, err := r.conn.NewUpdate().
		Model(m).
		ExcludeColumn(excluded...).
		Where("student_uid = ?", uid).
		Returning(masterColumnsWithoutPhoto).
		Exec(ctx, updated)

	r.metrics.RecordQuery(ctx, "update", tableStudents, time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		if db.IsUniqueViolation(err, studentsEmailKey) {
			return nil, ErrDuplicateEmail
		}
		return nil, storeErr("update master", err)
	}
	if updated.StudentUID == "" {
		return nil, ErrStudentNotFound
	}
	return updated, nil
}

func (r *repository) SetStage(ctx context.Context, uid string, stage Stage) error {
	start := time.Now()
	result, err := r.conn.NewUpdate().
		Model((*Master)(nil)).
		Set("stage = ?", stage).
		Set("updated_at = ?", time.Now()).
		Where("student_uid = ?", uid).
		Exec(ctx)

	r.metrics.RecordQuery(ctx, "update", tableStudents, time.Since(start), err)

	if err != nil {
		return storeErr("set stage", err)
	}
	return requireAffected(result)
}

// DeleteMaster removes the master row only.
func (r *repository) DeleteMaster(ctx context.Context, uid string) error {
	start := time.Now()
	result, err := r.conn.NewDelete().
		Model((*Master)(nil)).
		Where("student_uid = ?", uid).
		Exec(ctx)

	r.metrics.RecordQuery(ctx, "delete", tableStudents, time.Since(start), err)

	if err != nil {
		return storeErr("delete master", err)
	}
	return requireAffected(result)
}

// CreateExtension inserts the full slot set. A second row for the same student
// violates the unique identifier index and is reported as ErrInvalidStage.
func (r *repository) CreateExtension(ctx context.Context, ext Extension) error {
	start := time.Now()
	_, err := r.conn.NewInsert().Model(ext).Exec(ctx)

	r.metrics.RecordQuery(ctx, "insert", string(ext.Kind()), time.Since(start), err)

	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s already recorded", ErrInvalidStage, ext.Kind())
		}
		return storeErr("create "+string(ext.Kind()), err)
	}
	return nil
}

// ReplaceExtension upserts the row keyed by student identifier.
func (r *repository) ReplaceExtension(ctx context.Context, ext Extension, policy UpdatePolicy) error {
	q := r.conn.NewInsert().
		Model(ext).
		On("CONFLICT (student_uid) DO UPDATE")

	for _, col := range ext.SlotColumns() {
		if policy == CoalesceIfAbsent {
			q = q.Set("? = COALESCE(EXCLUDED.?, ?.?)",
				bun.Ident(col), bun.Ident(col), bun.Ident(ext.tableAlias()), bun.Ident(col))
		} else {
			q = q.Set("? = EXCLUDED.?", bun.Ident(col), bun.Ident(col))
		}
	}
	q = q.Set("updated_at = EXCLUDED.updated_at")

	start := time.Now()
	_, err := q.Exec(ctx)

	r.metrics.RecordQuery(ctx, "upsert", string(ext.Kind()), time.Since(start), err)

	return storeErr("replace "+string(ext.Kind()), err)
}

func (r *repository) ListExtensions(ctx context.Context, uid string) (*Extensions, error) {
	ext := &Extensions{
		Fees:       make([]FeeLedger, 0),
		Attendance: make([]AttendanceRecord, 0),
		Semesters:  make([]SemesterRecord, 0),
	}

	targets := []struct {
		kind  ExtensionKind
		model interface{}
	}{
		{KindFeeLedger, &ext.Fees},
		{KindAttendance, &ext.Attendance},
		{KindSemester, &ext.Semesters},
	}
	for _, t := range targets {
		start := time.Now()
		err := r.conn.NewSelect().Model(t.model).Where("student_uid = ?", uid).Order("id ASC").Scan(ctx)

		r.metrics.RecordQuery(ctx, "select", string(t.kind), time.Since(start), err)

		if err != nil {
			return nil, storeErr("list "+string(t.kind), err)
		}
	}
	return ext, nil
}

func (r *repository) DeleteExtensions(ctx context.Context, uid string) error {
	for _, model := range []Extension{(*FeeLedger)(nil), (*AttendanceRecord)(nil), (*SemesterRecord)(nil)} {
		start := time.Now()
		_, err := r.conn.NewDelete().Model(model).Where("student_uid = ?", uid).Exec(ctx)

		r.metrics.RecordQuery(ctx, "delete", string(model.Kind()), time.Since(start), err)

		if err != nil {
			return storeErr("delete "+string(model.Kind()), err)
		}
	}
	return nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if rowsAffected == 0 {
		return ErrStudentNotFound
	}
	return nil
}

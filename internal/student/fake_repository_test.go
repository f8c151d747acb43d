package student

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

// fakeRepository is an in-memory Repository. RunInTx restores a snapshot when fn fails.
type fakeRepository struct {
	mu      sync.Mutex
	nextKey int64
	masters map[int64]*Master
	ext     map[ExtensionKind]map[string]Extension

	// fail makes the named method return the error.
	fail map[string]error
	// skipPrecheck hides rows from FindMasterByEmail to simulate a concurrent insert.
	skipPrecheck bool
	// beforeListExtensions runs once, outside the lock, to interleave a concurrent writer.
	beforeListExtensions func()
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		masters: make(map[int64]*Master),
		ext: map[ExtensionKind]map[string]Extension{
			KindFeeLedger:  {},
			KindAttendance: {},
			KindSemester:   {},
		},
		fail: make(map[string]error),
	}
}

func (f *fakeRepository) failing(method string) error {
	if err, ok := f.fail[method]; ok {
		return storeErr(method, err)
	}
	return nil
}

func (f *fakeRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	f.mu.Lock()
	snapshot := f.snapshot()
	f.mu.Unlock()

	if err := fn(ctx, f); err != nil {
		f.mu.Lock()
		f.restore(snapshot)
		f.mu.Unlock()
		return err
	}
	return nil
}

type fakeSnapshot struct {
	nextKey int64
	masters map[int64]Master
	ext     map[ExtensionKind]map[string]Extension
}

func (f *fakeRepository) snapshot() fakeSnapshot {
	s := fakeSnapshot{
		nextKey: f.nextKey,
		masters: make(map[int64]Master, len(f.masters)),
		ext:     make(map[ExtensionKind]map[string]Extension),
	}
	for k, m := range f.masters {
		s.masters[k] = *m
	}
	for kind, rows := range f.ext {
		s.ext[kind] = make(map[string]Extension, len(rows))
		for uid, row := range rows {
			s.ext[kind][uid] = cloneExtension(row)
		}
	}
	return s
}

func (f *fakeRepository) restore(s fakeSnapshot) {
	f.nextKey = s.nextKey
	f.masters = make(map[int64]*Master, len(s.masters))
	for k, m := range s.masters {
		m := m
		f.masters[k] = &m
	}
	f.ext = s.ext
}

func (f *fakeRepository) byUID(uid string) *Master {
	for _, m := range f.masters {
		if m.StudentUID == uid {
			return m
		}
	}
	return nil
}

func (f *fakeRepository) CreateMaster(_ context.Context, m *Master) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("CreateMaster"); err != nil {
		return 0, err
	}
	for _, existing := range f.masters {
		if existing.Email == m.Email {
			return 0, ErrDuplicateEmail
		}
	}
	f.nextKey++
	m.ID = f.nextKey
	stored := *m
	if stored.Stage == "" {
		stored.Stage = StageCreated
	}
	f.masters[m.ID] = &stored
	return m.ID, nil
}

func (f *fakeRepository) AssignIdentifier(_ context.Context, key int64, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("AssignIdentifier"); err != nil {
		return err
	}
	m, ok := f.masters[key]
	if !ok || m.StudentUID != "" {
		return fmt.Errorf("%w: identifier already assigned for key %d", ErrInvalidStage, key)
	}
	m.StudentUID = uid
	return nil
}

func (f *fakeRepository) FindMasterByEmail(_ context.Context, email string) (*Master, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("FindMasterByEmail"); err != nil {
		return nil, err
	}
	if f.skipPrecheck {
		return nil, ErrStudentNotFound
	}
	for _, m := range f.masters {
		if m.Email == email {
			found := *m
			return &found, nil
		}
	}
	return nil, ErrStudentNotFound
}

func (f *fakeRepository) FindMasterByIdentifier(_ context.Context, uid string) (*Master, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("FindMasterByIdentifier"); err != nil {
		return nil, err
	}
	m := f.byUID(uid)
	if m == nil {
		return nil, ErrStudentNotFound
	}
	found := *m
	return &found, nil
}

func (f *fakeRepository) LockMaster(_ context.Context, uid string) (*Master, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("LockMaster"); err != nil {
		return nil, err
	}
	m := f.byUID(uid)
	if m == nil {
		return nil, ErrStudentNotFound
	}
	locked := *m
	return &locked, nil
}

func (f *fakeRepository) ListMasters(_ context.Context) ([]Master, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("ListMasters"); err != nil {
		return nil, err
	}
	masters := make([]Master, 0, len(f.masters))
	for key := int64(1); key <= f.nextKey; key++ {
		if m, ok := f.masters[key]; ok {
			listed := *m
			listed.Photo = nil
			masters = append(masters, listed)
		}
	}
	return masters, nil
}

func (f *fakeRepository) EmailTaken(_ context.Context, email, exceptUID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("EmailTaken"); err != nil {
		return false, err
	}
	for _, m := range f.masters {
		if m.Email == email && m.StudentUID != exceptUID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) UpdateMaster(_ context.Context, uid string, m *Master, photo []byte, policy UpdatePolicy) (*Master, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("UpdateMaster"); err != nil {
		return nil, err
	}
	stored := f.byUID(uid)
	if stored == nil {
		return nil, ErrStudentNotFound
	}
	updated := *m
	updated.ID = stored.ID
	updated.StudentUID = stored.StudentUID
	updated.Stage = stored.Stage
	updated.CreatedAt = stored.CreatedAt
	updated.Photo = photo
	if photo == nil && policy == CoalesceIfAbsent {
		updated.Photo = stored.Photo
	}
	*stored = updated

	returned := updated
	returned.Photo = nil
	return &returned, nil
}

func (f *fakeRepository) SetStage(_ context.Context, uid string, stage Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("SetStage"); err != nil {
		return err
	}
	m := f.byUID(uid)
	if m == nil {
		return ErrStudentNotFound
	}
	m.Stage = stage
	return nil
}

func (f *fakeRepository) DeleteMaster(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("DeleteMaster"); err != nil {
		return err
	}
	m := f.byUID(uid)
	if m == nil {
		return ErrStudentNotFound
	}
	delete(f.masters, m.ID)
	return nil
}

func (f *fakeRepository) CreateExtension(_ context.Context, ext Extension) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("CreateExtension:" + string(ext.Kind())); err != nil {
		return err
	}
	uid := extensionUID(ext)
	if _, exists := f.ext[ext.Kind()][uid]; exists {
		return fmt.Errorf("%w: %s already recorded", ErrInvalidStage, ext.Kind())
	}
	f.ext[ext.Kind()][uid] = cloneExtension(ext)
	return nil
}

func (f *fakeRepository) ReplaceExtension(_ context.Context, ext Extension, policy UpdatePolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("ReplaceExtension:" + string(ext.Kind())); err != nil {
		return err
	}
	uid := extensionUID(ext)
	incoming := cloneExtension(ext)
	if stored, ok := f.ext[ext.Kind()][uid]; ok && policy == CoalesceIfAbsent {
		coalesceSlots(incoming, stored)
	}
	f.ext[ext.Kind()][uid] = incoming
	return nil
}

func (f *fakeRepository) ListExtensions(_ context.Context, uid string) (*Extensions, error) {
	f.mu.Lock()
	hook := f.beforeListExtensions
	f.beforeListExtensions = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("ListExtensions"); err != nil {
		return nil, err
	}
	out := &Extensions{
		Fees:       make([]FeeLedger, 0),
		Attendance: make([]AttendanceRecord, 0),
		Semesters:  make([]SemesterRecord, 0),
	}
	if row, ok := f.ext[KindFeeLedger][uid]; ok {
		out.Fees = append(out.Fees, *row.(*FeeLedger))
	}
	if row, ok := f.ext[KindAttendance][uid]; ok {
		out.Attendance = append(out.Attendance, *row.(*AttendanceRecord))
	}
	if row, ok := f.ext[KindSemester][uid]; ok {
		out.Semesters = append(out.Semesters, *row.(*SemesterRecord))
	}
	return out, nil
}

func (f *fakeRepository) DeleteExtensions(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing("DeleteExtensions"); err != nil {
		return err
	}
	for kind := range f.ext {
		delete(f.ext[kind], uid)
	}
	return nil
}

func (f *fakeRepository) masterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.masters)
}

func (f *fakeRepository) extensionCount(kind ExtensionKind, uid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ext[kind][uid]; ok {
		return 1
	}
	return 0
}

func extensionUID(ext Extension) string {
	return reflect.ValueOf(ext).Elem().FieldByName("StudentUID").String()
}

func cloneExtension(ext Extension) Extension {
	v := reflect.New(reflect.TypeOf(ext).Elem())
	v.Elem().Set(reflect.ValueOf(ext).Elem())
	return v.Interface().(Extension)
}

// coalesceSlots fills nil slot pointers in dst from src.
func coalesceSlots(dst, src Extension) {
	d := reflect.ValueOf(dst).Elem()
	s := reflect.ValueOf(src).Elem()
	for i := 0; i < d.NumField(); i++ {
		if d.Type().Field(i).Anonymous && d.Field(i).Kind() == reflect.Struct && d.Type().Field(i).Name != "BaseModel" {
			slots := d.Field(i)
			for j := 0; j < slots.NumField(); j++ {
				if slots.Field(j).IsNil() {
					slots.Field(j).Set(s.Field(i).Field(j))
				}
			}
		}
	}
}

var _ Repository = (*fakeRepository)(nil)

package student

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"student-records/internal/metrics"
)

type Service interface {
	// CreateStudent is phase one: validate, insert the master row and assign its identifier.
	CreateStudent(ctx context.Context, m *Master, photo []byte) (*Enrollment, error)
	// AttachExtensionData is phase two. It is only valid while the student is in StageCreated.
	AttachExtensionData(ctx context.Context, uid string, in *ExtensionInput) (*Enrollment, error)
	GetStudent(ctx context.Context, uid string) (*StudentView, error)
	ListStudents(ctx context.Context) ([]Master, error)
	UpdateStudent(ctx context.Context, uid string, m *Master, photo []byte) (*Master, error)
	UpdateExtensionData(ctx context.Context, uid string, in *ExtensionInput) (*Enrollment, error)
	DeleteStudent(ctx context.Context, uid string) error
}

// Options carries the collaborators of the service. Zero values fall back to defaults;
// a nil Publisher or Cache disables events or caching.
type Options struct {
	Validator     *Validator
	Identifiers   IdentifierGenerator
	Policies      Policies
	CascadeDelete bool
	Publisher     Publisher
	Cache         ViewCache
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

type service struct {
	repo          Repository
	validator     *Validator
	identifiers   IdentifierGenerator
	policies      Policies
	cascadeDelete bool
	publisher     Publisher
	cache         ViewCache
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(repo Repository, opts Options) Service {
	s := &service{
		repo:          repo,
		validator:     opts.Validator,
		identifiers:   opts.Identifiers,
		policies:      opts.Policies.withDefaults(),
		cascadeDelete: opts.CascadeDelete,
		publisher:     opts.Publisher,
		cache:         opts.Cache,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.validator == nil {
		s.validator = NewValidator(s.now)
	}
	if s.identifiers == nil {
		s.identifiers = NewPrefixGenerator("")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *service) CreateStudent(ctx context.Context, m *Master, photo []byte) (*Enrollment, error) {
	if m == nil {
		return nil, ErrInvalidInput
	}
	if err := s.validate(ctx, m, photo); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindMasterByEmail(ctx, m.Email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrStudentNotFound) {
		return nil, err
	}

	m.ID = 0
	m.StudentUID = ""
	m.Stage = StageCreated
	m.Photo = photo

	var uid string
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx Repository) error {
		key, err := tx.CreateMaster(ctx, m)
		if err != nil {
			return err
		}
		uid = s.identifiers.Generate(key)
		return tx.AssignIdentifier(ctx, key, uid)
	})
	if err != nil {
		s.logFailure(ctx, "create student failed", err, "email", m.Email)
		return nil, err
	}
	m.StudentUID = uid

	s.logger.InfoContext(ctx, "student created", "student_uid", uid)
	s.metrics.RecordStudentCreated(ctx)
	s.publish(ctx, EventCreated, uid, StageCreated)

	return &Enrollment{StudentUID: uid, Stage: StageCreated}, nil
}

func (s *service) AttachExtensionData(ctx context.Context, uid string, in *ExtensionInput) (*Enrollment, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, ErrInvalidInput
	}
	if in == nil {
		in = &ExtensionInput{}
	}

	var next Stage
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx Repository) error {
		master, err := tx.LockMaster(ctx, uid)
		if err != nil {
			return err
		}
		next, err = master.Stage.Attach()
		if err != nil {
			return err
		}
		for _, ext := range in.Records(uid, s.now()) {
			if err := tx.CreateExtension(ctx, ext); err != nil {
				return err
			}
		}
		return tx.SetStage(ctx, uid, next)
	})
	if err != nil {
		s.logFailure(ctx, "attach extension data failed", err, "student_uid", uid)
		return nil, err
	}

	s.logger.InfoContext(ctx, "extension data attached", "student_uid", uid)
	s.invalidate(ctx, uid)
	s.metrics.RecordStudentExtended(ctx)
	s.publish(ctx, EventExtended, uid, next)

	return &Enrollment{StudentUID: uid, Stage: next}, nil
}

func (s *service) GetStudent(ctx context.Context, uid string) (*StudentView, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, ErrInvalidInput
	}

	fill := false
	var generation int64
	if s.cache != nil {
		view, ok, err := s.cache.Get(ctx, uid)
		if err != nil {
			s.logger.WarnContext(ctx, "student view cache read failed", "student_uid", uid, "error", err)
		} else if ok {
			s.metrics.RecordStudentViewed(ctx)
			return view, nil
		}
		// the generation must be read before the store
		generation, err = s.cache.Generation(ctx, uid)
		if err != nil {
			s.logger.WarnContext(ctx, "student view cache generation read failed", "student_uid", uid, "error", err)
		} else {
			fill = true
		}
	}

	master, err := s.repo.FindMasterByIdentifier(ctx, uid)
	if err != nil {
		return nil, err
	}
	ext, err := s.repo.ListExtensions(ctx, uid)
	if err != nil {
		return nil, err
	}

	view := &StudentView{
		Student:    MasterView{Master: *master},
		Fees:       ext.Fees,
		Attendance: ext.Attendance,
		Semesters:  ext.Semesters,
	}
	if len(master.Photo) > 0 {
		view.Student.Photo = base64.StdEncoding.EncodeToString(master.Photo)
	}

	if fill {
		stored, err := s.cache.Set(ctx, uid, view, generation)
		if err != nil {
			s.logger.WarnContext(ctx, "student view cache write failed", "student_uid", uid, "error", err)
		} else if !stored {
			s.logger.DebugContext(ctx, "stale student view not cached", "student_uid", uid)
		}
	}
	s.metrics.RecordStudentViewed(ctx)
	return view, nil
}

func (s *service) ListStudents(ctx context.Context) ([]Master, error) {
	masters, err := s.repo.ListMasters(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordStudentsListViewed(ctx)
	return masters, nil
}

func (s *service) UpdateStudent(ctx context.Context, uid string, m *Master, photo []byte) (*Master, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" || m == nil {
		return nil, ErrInvalidInput
	}
	if err := s.validate(ctx, m, photo); err != nil {
		return nil, err
	}

	var updated *Master
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.LockMaster(ctx, uid); err != nil {
			return err
		}
		taken, err := tx.EmailTaken(ctx, m.Email, uid)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateEmail
		}
		updated, err = tx.UpdateMaster(ctx, uid, m, photo, s.policies.Photo)
		return err
	})
	if err != nil {
		s.logFailure(ctx, "update student failed", err, "student_uid", uid)
		return nil, err
	}

	s.logger.InfoContext(ctx, "student updated", "student_uid", uid, "photo_replaced", photo != nil)
	s.invalidate(ctx, uid)
	s.metrics.RecordStudentUpdated(ctx)
	s.publish(ctx, EventUpdated, uid, "")

	return updated, nil
}

func (s *service) UpdateExtensionData(ctx context.Context, uid string, in *ExtensionInput) (*Enrollment, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, ErrInvalidInput
	}
	if in == nil {
		in = &ExtensionInput{}
	}

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx Repository) error {
		master, err := tx.LockMaster(ctx, uid)
		if err != nil {
			return err
		}
		if !master.Stage.Valid() {
			return fmt.Errorf("%w: unknown stage %q", ErrInvalidStage, master.Stage)
		}
		for _, ext := range in.Records(uid, s.now()) {
			if err := tx.ReplaceExtension(ctx, ext, s.policies.Extension); err != nil {
				return err
			}
		}
		if master.Stage == StageExtended {
			return nil
		}
		return tx.SetStage(ctx, uid, StageExtended)
	})
	if err != nil {
		s.logFailure(ctx, "update extension data failed", err, "student_uid", uid)
		return nil, err
	}

	s.logger.InfoContext(ctx, "extension data updated", "student_uid", uid, "policy", s.policies.Extension.String())
	s.invalidate(ctx, uid)
	s.metrics.RecordExtensionUpdated(ctx)
	s.publish(ctx, EventExtensionUpdated, uid, StageExtended)

	return &Enrollment{StudentUID: uid, Stage: StageExtended}, nil
}

func (s *service) DeleteStudent(ctx context.Context, uid string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return ErrInvalidInput
	}

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.DeleteMaster(ctx, uid); err != nil {
			return err
		}
		if s.cascadeDelete {
			return tx.DeleteExtensions(ctx, uid)
		}
		return nil
	})
	if err != nil {
		s.logFailure(ctx, "delete student failed", err, "student_uid", uid)
		return err
	}

	s.logger.InfoContext(ctx, "student deleted", "student_uid", uid, "cascade", s.cascadeDelete)
	s.invalidate(ctx, uid)
	s.metrics.RecordStudentDeleted(ctx)
	s.publish(ctx, EventDeleted, uid, "")
	return nil
}

func (s *service) validate(ctx context.Context, m *Master, photo []byte) error {
	m.trimSpace()
	if err := s.validator.Validate(m, photo); err != nil {
		s.metrics.RecordValidationFailure(ctx, ErrorKind(err))
		return err
	}
	return nil
}

// publish and invalidate run after commit; their failures are logged, not returned.
func (s *service) publish(ctx context.Context, eventType, uid string, stage Stage) {
	if s.publisher == nil {
		return
	}
	event := NewEvent(eventType, uid, stage, s.now())
	start := time.Now()
	err := s.publisher.SendMessage(ctx, uid, event)
	s.metrics.RecordPublish(ctx, eventType, time.Since(start), err)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish student event", "type", eventType, "student_uid", uid, "error", err)
	}
}

func (s *service) invalidate(ctx context.Context, uid string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, uid); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate student view", "student_uid", uid, "error", err)
	}
}

// logFailure logs store outages at error level; caller mistakes stay at info.
func (s *service) logFailure(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "error", err, "kind", ErrorKind(err))
	if errors.Is(err, ErrStoreUnavailable) {
		s.logger.ErrorContext(ctx, msg, args...)
		return
	}
	s.logger.InfoContext(ctx, msg, args...)
}

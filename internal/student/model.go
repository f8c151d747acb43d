package student

import (
	"reflect"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Master is the primary student identity row. ID is the internal key and is
// never serialized; StudentUID is the public handle assigned at creation.
type Master struct {
	bun.BaseModel `bun:"table:students,alias:s"`

	ID         int64  `bun:"id,pk,autoincrement" json:"-"`
	StudentUID string `bun:"student_uid,nullzero,unique" json:"studentUid"`

	Name                string `bun:"name,notnull" json:"name"`
	DOB                 string `bun:"dob,notnull" json:"dob"`
	FatherName          string `bun:"father_name,notnull" json:"fatherName"`
	FatherOccupation    string `bun:"father_occupation,nullzero" json:"fatherOccupation"`
	MotherName          string `bun:"mother_name,nullzero" json:"motherName"`
	MotherOccupation    string `bun:"mother_occupation,nullzero" json:"motherOccupation"`
	MediumOfInstruction string `bun:"medium_of_instruction,nullzero" json:"mediumOfInstruction"`
	MarksScored         string `bun:"marks_scored,nullzero" json:"marksScored"`
	Percentage          string `bun:"percentage,nullzero" json:"percentage"`
	SchoolNamePlace     string `bun:"school_name_place,nullzero" json:"schoolNamePlace"`
	Religion            string `bun:"religion,nullzero" json:"religion"`
	Nationality         string `bun:"nationality,nullzero" json:"nationality"`
	Category            string `bun:"category,nullzero" json:"category"`
	DateOfAdmission     string `bun:"date_of_admission,nullzero" json:"dateOfAdmission"`
	DateOfLeaving       string `bun:"date_of_leaving,nullzero" json:"dateOfLeaving"`
	ContactNo           string `bun:"contact_no,notnull" json:"contactNo"`
	Email               string `bun:"email,unique,notnull" json:"email"`
	Aadhaar             string `bun:"aadhaar,nullzero" json:"aadhaar"`
	Address             string `bun:"address,notnull" json:"address"`
	Gender              string `bun:"gender,notnull" json:"gender"`
	Course              string `bun:"course,notnull" json:"course"`
	Year                string `bun:"year,notnull" json:"year"`
	BloodGroup          string `bun:"blood_group,nullzero" json:"bloodGroup"`
	ScholarshipDetails  string `bun:"scholarship_details,nullzero" json:"scholarshipDetails"`

	Photo []byte `bun:"photo,type:bytea" json:"-"`

	Stage     Stage     `bun:"stage,nullzero,notnull,default:'created'" json:"stage"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// formFields maps the submitted form keys onto the master's text fields.
func (m *Master) formFields() map[string]*string {
	return map[string]*string{
		"name":                &m.Name,
		"dob":                 &m.DOB,
		"fatherName":          &m.FatherName,
		"fatherOccupation":    &m.FatherOccupation,
		"motherName":          &m.MotherName,
		"motherOccupation":    &m.MotherOccupation,
		"mediumOfInstruction": &m.MediumOfInstruction,
		"marksScored":         &m.MarksScored,
		"percentage":          &m.Percentage,
		"schoolNamePlace":     &m.SchoolNamePlace,
		"religion":            &m.Religion,
		"nationality":         &m.Nationality,
		"category":            &m.Category,
		"dateOfAdmission":     &m.DateOfAdmission,
		"dateOfLeaving":       &m.DateOfLeaving,
		"contactNo":           &m.ContactNo,
		"email":               &m.Email,
		"aadhaar":             &m.Aadhaar,
		"address":             &m.Address,
		"gender":              &m.Gender,
		"course":              &m.Course,
		"year":                &m.Year,
		"bloodGroup":          &m.BloodGroup,
		"scholarshipDetails":  &m.ScholarshipDetails,
	}
}

// masterColumnsWithoutPhoto is the RETURNING list for master writes.
var masterColumnsWithoutPhoto = returningColumns(Master{}, "photo")

func returningColumns(model interface{}, skip string) string {
	t := reflect.TypeOf(model)
	cols := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("bun"), ",")
		if name == "" || name == "-" || name == skip {
			continue
		}
		cols = append(cols, `"`+name+`"`)
	}
	return strings.Join(cols, ", ")
}

// trimSpace strips surrounding whitespace from every text field so the
// stored value is the one that was validated.
func (m *Master) trimSpace() {
	for _, field := range m.formFields() {
		*field = strings.TrimSpace(*field)
	}
}

// ExtensionKind names one of the three dependent tables.
type ExtensionKind string

const (
	KindFeeLedger  ExtensionKind = "student_fees"
	KindAttendance ExtensionKind = "student_attendance"
	KindSemester   ExtensionKind = "student_semesters"
)

// FeeSlots holds one fee amount per academic year. Nil means not yet reported.
type FeeSlots struct {
	FeesYear1 *float64 `bun:"fees_year1" json:"feesYear1"`
	FeesYear2 *float64 `bun:"fees_year2" json:"feesYear2"`
	FeesYear3 *float64 `bun:"fees_year3" json:"feesYear3"`
	FeesYear4 *float64 `bun:"fees_year4" json:"feesYear4"`
}

// AttendanceSlots holds attendance percentages for semesters one to eight.
type AttendanceSlots struct {
	AttendanceSem1 *float64 `bun:"attendance_sem1" json:"attendanceSem1"`
	AttendanceSem2 *float64 `bun:"attendance_sem2" json:"attendanceSem2"`
	AttendanceSem3 *float64 `bun:"attendance_sem3" json:"attendanceSem3"`
	AttendanceSem4 *float64 `bun:"attendance_sem4" json:"attendanceSem4"`
	AttendanceSem5 *float64 `bun:"attendance_sem5" json:"attendanceSem5"`
	AttendanceSem6 *float64 `bun:"attendance_sem6" json:"attendanceSem6"`
	AttendanceSem7 *float64 `bun:"attendance_sem7" json:"attendanceSem7"`
	AttendanceSem8 *float64 `bun:"attendance_sem8" json:"attendanceSem8"`
}

type SemesterSlots struct {
	ExamFeesSem1 *float64 `bun:"examfees_sem1" json:"examfeesSem1"`
	ExamFeesSem2 *float64 `bun:"examfees_sem2" json:"examfeesSem2"`
	ExamFeesSem3 *float64 `bun:"examfees_sem3" json:"examfeesSem3"`
	ExamFeesSem4 *float64 `bun:"examfees_sem4" json:"examfeesSem4"`
	ExamFeesSem5 *float64 `bun:"examfees_sem5" json:"examfeesSem5"`
	ExamFeesSem6 *float64 `bun:"examfees_sem6" json:"examfeesSem6"`
	ExamFeesSem7 *float64 `bun:"examfees_sem7" json:"examfeesSem7"`
	ExamFeesSem8 *float64 `bun:"examfees_sem8" json:"examfeesSem8"`

	GPASem1 *float64 `bun:"gpa_sem1" json:"gpaSem1"`
	GPASem2 *float64 `bun:"gpa_sem2" json:"gpaSem2"`
	GPASem3 *float64 `bun:"gpa_sem3" json:"gpaSem3"`
	GPASem4 *float64 `bun:"gpa_sem4" json:"gpaSem4"`
	GPASem5 *float64 `bun:"gpa_sem5" json:"gpaSem5"`
	GPASem6 *float64 `bun:"gpa_sem6" json:"gpaSem6"`
	GPASem7 *float64 `bun:"gpa_sem7" json:"gpaSem7"`
	GPASem8 *float64 `bun:"gpa_sem8" json:"gpaSem8"`

	CGPASem1 *float64 `bun:"cgpa_sem1" json:"cgpaSem1"`
	CGPASem2 *float64 `bun:"cgpa_sem2" json:"cgpaSem2"`
	CGPASem3 *float64 `bun:"cgpa_sem3" json:"cgpaSem3"`
	CGPASem4 *float64 `bun:"cgpa_sem4" json:"cgpaSem4"`
	CGPASem5 *float64 `bun:"cgpa_sem5" json:"cgpaSem5"`
	CGPASem6 *float64 `bun:"cgpa_sem6" json:"cgpaSem6"`
	CGPASem7 *float64 `bun:"cgpa_sem7" json:"cgpaSem7"`
	CGPASem8 *float64 `bun:"cgpa_sem8" json:"cgpaSem8"`

	MarksheetSem1 *string `bun:"marksheet_sem1" json:"marksheetSem1"`
	MarksheetSem2 *string `bun:"marksheet_sem2" json:"marksheetSem2"`
	MarksheetSem3 *string `bun:"marksheet_sem3" json:"marksheetSem3"`
	MarksheetSem4 *string `bun:"marksheet_sem4" json:"marksheetSem4"`
	MarksheetSem5 *string `bun:"marksheet_sem5" json:"marksheetSem5"`
	MarksheetSem6 *string `bun:"marksheet_sem6" json:"marksheetSem6"`
	MarksheetSem7 *string `bun:"marksheet_sem7" json:"marksheetSem7"`
	MarksheetSem8 *string `bun:"marksheet_sem8" json:"marksheetSem8"`
}

type FeeLedger struct {
	bun.BaseModel `bun:"table:student_fees,alias:sf"`

	ID         int64  `bun:"id,pk,autoincrement" json:"-"`
	StudentUID string `bun:"student_uid,notnull,unique" json:"studentUid"`
	FeeSlots
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

type AttendanceRecord struct {
	bun.BaseModel `bun:"table:student_attendance,alias:sa"`

	ID         int64  `bun:"id,pk,autoincrement" json:"-"`
	StudentUID string `bun:"student_uid,notnull,unique" json:"studentUid"`
	AttendanceSlots
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

type SemesterRecord struct {
	bun.BaseModel `bun:"table:student_semesters,alias:ss"`

	ID         int64  `bun:"id,pk,autoincrement" json:"-"`
	StudentUID string `bun:"student_uid,notnull,unique" json:"studentUid"`
	SemesterSlots
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// Extension is implemented by the three dependent row types.
type Extension interface {
	Kind() ExtensionKind
	// SlotColumns lists the nullable slot columns written on every save.
	SlotColumns() []string
	tableAlias() string
}

var (
	feeColumns        = slotColumns(FeeSlots{})
	attendanceColumns = slotColumns(AttendanceSlots{})
	semesterColumns   = slotColumns(SemesterSlots{})
)

func slotColumns(slots interface{}) []string {
	t := reflect.TypeOf(slots)
	cols := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("bun"), ",")
		cols = append(cols, name)
	}
	return cols
}

func (*FeeLedger) Kind() ExtensionKind   { return KindFeeLedger }
func (*FeeLedger) SlotColumns() []string { return feeColumns }
func (*FeeLedger) tableAlias() string    { return "sf" }

func (*AttendanceRecord) Kind() ExtensionKind   { return KindAttendance }
func (*AttendanceRecord) SlotColumns() []string { return attendanceColumns }
func (*AttendanceRecord) tableAlias() string    { return "sa" }

func (*SemesterRecord) Kind() ExtensionKind   { return KindSemester }
func (*SemesterRecord) SlotColumns() []string { return semesterColumns }
func (*SemesterRecord) tableAlias() string    { return "ss" }

// ExtensionInput is the combined phase-two payload: every fee, attendance and
// semester slot as one flat object.
type ExtensionInput struct {
	FeeSlots
	AttendanceSlots
	SemesterSlots
}

// Records splits the payload into the three rows keyed by uid.
func (in *ExtensionInput) Records(uid string, now time.Time) []Extension {
	return []Extension{
		&FeeLedger{StudentUID: uid, FeeSlots: in.FeeSlots, UpdatedAt: now},
		&AttendanceRecord{StudentUID: uid, AttendanceSlots: in.AttendanceSlots, UpdatedAt: now},
		&SemesterRecord{StudentUID: uid, SemesterSlots: in.SemesterSlots, UpdatedAt: now},
	}
}

// Extensions are the dependent rows stored for one student.
type Extensions struct {
	Fees       []FeeLedger
	Attendance []AttendanceRecord
	Semesters  []SemesterRecord
}

// MasterView is a master record with the photo rendered as base64.
type MasterView struct {
	Master
	Photo string `json:"photo,omitempty"`
}

type StudentView struct {
	Student    MasterView         `json:"student"`
	Fees       []FeeLedger        `json:"studentFees"`
	Attendance []AttendanceRecord `json:"studentAttendance"`
	Semesters  []SemesterRecord   `json:"studentSemesters"`
}

// Enrollment is the result of a step in the onboarding state machine.
type Enrollment struct {
	StudentUID string `json:"studentUid"`
	Stage      Stage  `json:"stage"`
}

package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_Attach(t *testing.T) {
	next, err := StageCreated.Attach()
	require.NoError(t, err)
	assert.Equal(t, StageExtended, next)

	next, err = StageExtended.Attach()
	assert.ErrorIs(t, err, ErrInvalidStage)
	assert.Equal(t, StageExtended, next)

	assert.True(t, StageCreated.Valid())
	assert.False(t, Stage("archived").Valid())
}

func TestParseUpdatePolicy(t *testing.T) {
	for input, want := range map[string]UpdatePolicy{
		"coalesce_if_absent":    CoalesceIfAbsent,
		"coalesce":              CoalesceIfAbsent,
		"overwrite_with_absent": OverwriteWithAbsent,
		"overwrite":             OverwriteWithAbsent,
	} {
		got, err := ParseUpdatePolicy(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}

	_, err := ParseUpdatePolicy("merge")
	assert.Error(t, err)

	assert.Equal(t, "coalesce_if_absent", CoalesceIfAbsent.String())
	assert.Equal(t, DefaultPolicies(), Policies{}.withDefaults())
	assert.Equal(t, OverwriteWithAbsent, Policies{Photo: OverwriteWithAbsent}.withDefaults().Photo)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "missing_field", ErrorKind(&FieldError{Label: "Name"}))
	assert.Equal(t, "store_unavailable", ErrorKind(&StoreError{Op: "insert", Err: errConnRefused}))
	assert.Equal(t, "duplicate_email", ErrorKind(ErrDuplicateEmail))
	assert.Equal(t, "internal", ErrorKind(assert.AnError))

	assert.True(t, IsValidationError(ErrPhotoTooLarge))
	assert.False(t, IsValidationError(ErrDuplicateEmail))

	assert.Nil(t, storeErr("noop", nil))
	assert.Equal(t, ErrStudentNotFound, storeErr("select", ErrStudentNotFound))
}

func TestSlotColumns(t *testing.T) {
	assert.Equal(t, []string{"fees_year1", "fees_year2", "fees_year3", "fees_year4"}, (*FeeLedger)(nil).SlotColumns())
	assert.Len(t, (*AttendanceRecord)(nil).SlotColumns(), 8)
	assert.Len(t, (*SemesterRecord)(nil).SlotColumns(), 32)
	assert.Contains(t, (*SemesterRecord)(nil).SlotColumns(), "marksheet_sem8")
}

package student

import "fmt"

// Stage is the onboarding state persisted on the master row.
//
//	Created --attach extension--> Extended
//
// Updating extension data from Created also moves the record to Extended.
type Stage string

const (
	StageCreated  Stage = "created"
	StageExtended Stage = "extended"
)

// Attach returns the stage reached by attaching extension data.
// Only a freshly created record accepts phase two.
func (s Stage) Attach() (Stage, error) {
	if s != StageCreated {
		return s, fmt.Errorf("%w: extension data already attached (stage %q)", ErrInvalidStage, s)
	}
	return StageExtended, nil
}

// Valid reports whether s is a known stage. Rows written outside the service
// may carry anything.
func (s Stage) Valid() bool {
	return s == StageCreated || s == StageExtended
}

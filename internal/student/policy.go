package student

import "fmt"

// UpdatePolicy decides what an update does with a field group whose new value is absent.
type UpdatePolicy int

const (
	// CoalesceIfAbsent keeps the stored value.
	CoalesceIfAbsent UpdatePolicy = iota + 1
	// OverwriteWithAbsent clears the stored value.
	OverwriteWithAbsent
)

func (p UpdatePolicy) String() string {
	switch p {
	case CoalesceIfAbsent:
		return "coalesce_if_absent"
	case OverwriteWithAbsent:
		return "overwrite_with_absent"
	default:
		return fmt.Sprintf("UpdatePolicy(%d)", int(p))
	}
}

func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch s {
	case "coalesce_if_absent", "coalesce":
		return CoalesceIfAbsent, nil
	case "overwrite_with_absent", "overwrite":
		return OverwriteWithAbsent, nil
	default:
		return 0, fmt.Errorf("unknown update policy %q", s)
	}
}

// Policies holds the update policy for each field group.
type Policies struct {
	Photo     UpdatePolicy
	Extension UpdatePolicy
}

// DefaultPolicies keeps a stored photo when an update omits it and clears
// extension slots the update leaves out.
func DefaultPolicies() Policies {
	return Policies{
		Photo:     CoalesceIfAbsent,
		Extension: OverwriteWithAbsent,
	}
}

func (p Policies) withDefaults() Policies {
	d := DefaultPolicies()
	if p.Photo == 0 {
		p.Photo = d.Photo
	}
	if p.Extension == 0 {
		p.Extension = d.Extension
	}
	return p
}

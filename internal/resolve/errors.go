// File: internal/resolve/errors.go
// Brief: Typed resolution errors; every one aborts the whole pass.

package resolve

import (
	"fmt"

	"github.com/example/hsm/internal/registry"
)

// UnknownComponentError reports a reference to a component that does
// not exist in the registry.
type UnknownComponentError struct {
	Name string
	// Ref names what held the dangling reference (a manifest entry, a
	// group, or an implying component).
	Ref string
}

func (e *UnknownComponentError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("component %q does not exist in the registry", e.Name)
	}
	return fmt.Sprintf("component %q (referenced by %s) does not exist in the registry", e.Name, e.Ref)
}

// UnknownGroupError reports a manifest reference to a group that does
// not exist in the registry.
type UnknownGroupError struct {
	Group string
}

func (e *UnknownGroupError) Error() string {
	return fmt.Sprintf("group %q does not exist in the registry", e.Group)
}

// UnknownOptionError reports a selection of an option that is not a
// member of its group.
type UnknownOptionError struct {
	Group  string
	Option string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("option %q is not a member of group %q", e.Option, e.Group)
}

// InvalidSelectionError reports a 1-of-N group with zero or multiple
// active options.
type InvalidSelectionError struct {
	Group    string
	Selected []string
}

func (e *InvalidSelectionError) Error() string {
	if len(e.Selected) == 0 {
		return fmt.Sprintf("group %q is 1-of-N but has no selection", e.Group)
	}
	return fmt.Sprintf("group %q is 1-of-N but has %d selections %v", e.Group, len(e.Selected), e.Selected)
}

// Contribution records which component supplied which value for a
// parameter, for conflict reporting and traceability.
type Contribution struct {
	Source string
	Value  string
}

// ConflictError reports two contributors disagreeing on a scalar
// parameter of a shared target.
type ConflictError struct {
	Target string
	Param  string
	First  Contribution
	Second Contribution
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting values for scalar parameter %q of %q: %q (from %s) vs %q (from %s)",
		e.Param, e.Target, e.First.Value, e.First.Source, e.Second.Value, e.Second.Source)
}

// MissingSourceError reports a component with no source variant usable
// for its effective mode.
type MissingSourceError struct {
	Component string
	Mode      registry.Mode
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("component %q has no source for mode %q", e.Component, e.Mode)
}

// MissingProfileError reports an explicitly referenced deployment
// profile that the service does not declare.
type MissingProfileError struct {
	Component string
	Profile   string
}

func (e *MissingProfileError) Error() string {
	return fmt.Sprintf("service %q does not declare deployment profile %q", e.Component, e.Profile)
}

// UnresolvedVariableError reports a ${NAME} placeholder with no value
// in the variable source.
type UnresolvedVariableError struct {
	Variable  string
	Component string
}

func (e *UnresolvedVariableError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("variable %q has no value", e.Variable)
	}
	return fmt.Sprintf("variable %q used by component %q has no value", e.Variable, e.Component)
}

// InvalidModeError reports a mode string outside {dev, prod}.
type InvalidModeError struct {
	Component string
	Mode      string
}

func (e *InvalidModeError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("invalid mode %q (expected dev or prod)", e.Mode)
	}
	return fmt.Sprintf("invalid mode %q on component %q (expected dev or prod)", e.Mode, e.Component)
}

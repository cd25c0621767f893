package engine

// Applicability lists the directions a detector is meaningful for.
type Applicability int

const (
	AppliesInput Applicability = iota + 1
	AppliesOutput
	AppliesBoth
)

// DetectorSpec describes one remote detector. Specs are defined once at
// start-up and shared read-only.
type DetectorSpec struct {
	ID             string         `json:"id"`
	DisplayName    string         `json:"display_name"`
	Description    string         `json:"description"`
	Icon           string         `json:"icon"`
	RequiredParams []string       `json:"required_params,omitempty"`
	DefaultParams  map[string]any `json:"default_params,omitempty"`
	Applicability  Applicability  `json:"-"`
}

// HasParams reports whether the detector needs auxiliary parameters.
func (s DetectorSpec) HasParams() bool {
	return len(s.RequiredParams) > 0
}

func (s DetectorSpec) AppliesTo(d Direction) bool {
	switch s.Applicability {
	case AppliesBoth:
		return true
	case AppliesInput:
		return d == DirectionInput
	case AppliesOutput:
		return d == DirectionOutput
	default:
		return false
	}
}

// MissingParams lists required parameters absent from params. Missing
// parameters are not an error: the call proceeds with the defaults.
func (s DetectorSpec) MissingParams(params map[string]any) []string {
	var missing []string
	for _, p := range s.RequiredParams {
		if _, ok := params[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// Defaults returns a copy of the default parameters, never nil.
func (s DetectorSpec) Defaults() map[string]any {
	out := make(map[string]any, len(s.DefaultParams))
	for k, v := range s.DefaultParams {
		if list, ok := v.([]any); ok {
			v = append([]any{}, list...)
		}
		out[k] = v
	}
	return out
}

// Registry is the catalog of known detectors.
type Registry interface {
	// Specs returns the detectors defined for d in display order.
	Specs(d Direction) []DetectorSpec

	// Lookup returns the spec for id if it is defined for d.
	Lookup(d Direction, id string) (DetectorSpec, bool)
}

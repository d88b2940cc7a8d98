package automation

// Run modes for an automation. They describe how the backend handles a
// trigger firing while a previous run is still in flight.
const (
	ModeSingle   = "single"
	ModeRestart  = "restart"
	ModeQueued   = "queued"
	ModeParallel = "parallel"
)

// validModes is the closed set of run modes.
var validModes = map[string]struct{}{
	ModeSingle:   {},
	ModeRestart:  {},
	ModeQueued:   {},
	ModeParallel: {},
}

// Automation is the parsed view of one automation definition. The raw
// config is what gets persisted; this struct exists for listing and
// duplicate detection.
type Automation struct {
	ID          string `json:"id" yaml:"id"`
	Alias       string `json:"alias,omitempty" yaml:"alias,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Mode        string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Raw is the full definition as supplied, preserved verbatim so the
	// backend sees exactly what the author wrote.
	Raw map[string]any `json:"-" yaml:"-"`
}

// fromConfig projects the listed fields out of a raw definition.
func fromConfig(cfg map[string]any) Automation {
	a := Automation{Raw: cfg}
	if id, ok := cfg["id"].(string); ok {
		a.ID = id
	}
	if alias, ok := cfg["alias"].(string); ok {
		a.Alias = alias
	}
	if desc, ok := cfg["description"].(string); ok {
		a.Description = desc
	}
	if mode, ok := cfg["mode"].(string); ok {
		a.Mode = mode
	}
	return a
}

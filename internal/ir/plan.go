package ir

// Action is the kind of change a plan step performs.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionReplace Action = "REPLACE"
	ActionDelete  Action = "DELETE"
	ActionNoOp    Action = "NOOP"
)

// Plan is an ordered sequence of changes that reconciles a declaration
// with applied state. Applying a plan is idempotent: re-planning after a
// complete apply yields no changes.
type Plan struct {
	Metadata *PlanMetadata `json:"metadata"`
	Changes  []*Change     `json:"changes"`
	Summary  *PlanSummary  `json:"summary"`
	Outputs  []*OutputSpec `json:"outputs"`
}

type PlanMetadata struct {
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
	StateSerial int    `json:"stateSerial"`
}

// Change is one planned operation for a single resource.
type Change struct {
	Address string                   `json:"address"`
	Action  Action                   `json:"action"`
	Desired *Resource                `json:"desired,omitempty"`
	Prior   *ResourceState           `json:"prior,omitempty"`
	Diff    map[string]*PropertyDiff `json:"diff,omitempty"`
}

type PropertyDiff struct {
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
	Action string `json:"action"` // "create", "update", "delete"
}

type PlanSummary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Replace int `json:"replace"`
	Delete  int `json:"delete"`
	NoOp    int `json:"noop"`
}

// Empty reports whether the plan contains no changes.
func (p *Plan) Empty() bool {
	return len(p.Changes) == 0
}

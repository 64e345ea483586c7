package domain

type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
)

func (s NodeStatus) Terminal() bool {
	return s == NodeStatusCompleted || s == NodeStatusFailed
}

type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// NodeResult is the recorded outcome of one node. Err is kept for callers in
// process; Error is its serialisable form.
type NodeResult struct {
	Status   NodeStatus  `json:"status"`
	Output   interface{} `json:"output,omitempty"`
	Error    string      `json:"error,omitempty"`
	Kind     ErrorKind   `json:"kind,omitempty"`
	Attempts int         `json:"attempts"`
	Healed   bool        `json:"healed,omitempty"`
	Err      error       `json:"-"`
}

type RunResult struct {
	Results  map[string]NodeResult `json:"results"`
	Progress Progress              `json:"progress"`
}

func (r *RunResult) Failed() []string {
	var ids []string
	for id, res := range r.Results {
		if res.Status == NodeStatusFailed {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *RunResult) Succeeded() bool {
	return len(r.Failed()) == 0 && r.Progress.Completed == r.Progress.Total
}

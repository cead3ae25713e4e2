package testsession

import (
	"time"

	"github.com/privacyshield/sazpd-console/pkg/modules"
)

// ModuleStatus is the lifecycle state of one module within a session.
type ModuleStatus string

const (
	ModuleIdle      ModuleStatus = "idle"
	ModuleRunning   ModuleStatus = "running"
	ModuleCompleted ModuleStatus = "completed"
	ModuleFailed    ModuleStatus = "failed"
)

// IsSettled returns true once the module has finished, successfully or not.
func (s ModuleStatus) IsSettled() bool {
	return s == ModuleCompleted || s == ModuleFailed
}

// SessionStatus is the lifecycle state of a test session.
type SessionStatus string

const (
	SessionIdle      SessionStatus = "idle"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// IsTerminal returns true if the session can only leave this state via reset.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// Results is what one module execution reports.
type Results struct {
	TestsRun int      `json:"testsRun"`
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// normalize enforces passed+failed <= testsRun and non-nil slices.
func (r Results) normalize() Results {
	if r.Passed < 0 {
		r.Passed = 0
	}
	if r.Failed < 0 {
		r.Failed = 0
	}
	if r.TestsRun < r.Passed+r.Failed {
		r.TestsRun = r.Passed + r.Failed
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	return r
}

func (r Results) clone() Results {
	out := r
	out.Errors = append([]string{}, r.Errors...)
	out.Warnings = append([]string{}, r.Warnings...)
	return out
}

// Module is the state of one compliance module inside a session.
type Module struct {
	ID          modules.ID   `json:"id"`
	Name        string       `json:"name"`
	Status      ModuleStatus `json:"status"`
	Progress    int          `json:"progress"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Results     Results      `json:"results"`
}

func (m Module) clone() Module {
	out := m
	out.StartedAt = cloneTime(m.StartedAt)
	out.CompletedAt = cloneTime(m.CompletedAt)
	out.Results = m.Results.clone()
	return out
}

// Summary aggregates the results of a completed session.
type Summary struct {
	TotalTests    int           `json:"totalTests"`
	TotalPassed   int           `json:"totalPassed"`
	TotalFailed   int           `json:"totalFailed"`
	TotalDuration time.Duration `json:"totalDuration"`
}

// Session is one orchestration run over all modules.
type Session struct {
	ID          string        `json:"id"`
	Status      SessionStatus `json:"status"`
	Progress    int           `json:"progress"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Modules     []Module      `json:"modules"`
	Summary     *Summary      `json:"summary,omitempty"`
}

// Clone returns a deep copy safe to hand to readers.
func (s *Session) Clone() Session {
	out := *s
	out.StartedAt = cloneTime(s.StartedAt)
	out.CompletedAt = cloneTime(s.CompletedAt)
	out.Modules = make([]Module, len(s.Modules))
	for i, m := range s.Modules {
		out.Modules[i] = m.clone()
	}
	if s.Summary != nil {
		sum := *s.Summary
		out.Summary = &sum
	}
	return out
}

// Module returns the module with the given id.
func (s *Session) Module(id modules.ID) (*Module, bool) {
	i, ok := id.Index()
	if !ok || i >= len(s.Modules) {
		return nil, false
	}
	return &s.Modules[i], true
}

func newIdleSession(id string) *Session {
	s := &Session{
		ID:      id,
		Status:  SessionIdle,
		Modules: make([]Module, modules.Count),
	}
	for i, m := range modules.All() {
		s.Modules[i] = Module{
			ID:      m.ID,
			Name:    m.Name,
			Status:  ModuleIdle,
			Results: Results{}.normalize(),
		}
	}
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SessionRecord is the GORM model of a finished session kept in history.
type SessionRecord struct {
	ID          string        `gorm:"primaryKey;column:id;type:varchar(36)"`
	Status      SessionStatus `gorm:"column:status;index:idx_session_status;not null"`
	Progress    int           `gorm:"column:progress"`
	StartedAt   *time.Time    `gorm:"column:started_at"`
	CompletedAt *time.Time    `gorm:"column:completed_at;index:idx_session_completed"`
	Modules     []Module      `gorm:"column:modules;serializer:json"`
	Summary     *Summary      `gorm:"column:summary;serializer:json"`
}

// TableName returns the GORM table name.
func (SessionRecord) TableName() string { return "test_sessions" }

func recordFromSession(s Session) *SessionRecord {
	return &SessionRecord{
		ID:          s.ID,
		Status:      s.Status,
		Progress:    s.Progress,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		Modules:     s.Modules,
		Summary:     s.Summary,
	}
}

// Session converts the record back to its API shape.
func (r *SessionRecord) Session() Session {
	return Session{
		ID:          r.ID,
		Status:      r.Status,
		Progress:    r.Progress,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Modules:     r.Modules,
		Summary:     r.Summary,
	}
}

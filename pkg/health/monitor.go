// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package health tracks per-agent behavioral health, plans constitutional
// guardian interventions, and scrubs contaminated history.
package health

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Detection thresholds.
const (
	EmptyResponseThreshold     = 2
	IdenticalResponseThreshold = 2
	MinimalResponseThreshold   = 3
	StuckStateThreshold        = 6

	// MinimalResponseChars is the length below which a cleaned response
	// counts as minimal.
	MinimalResponseChars = 50

	// recentHashWindow is how many prior response hashes the identical
	// check compares against.
	recentHashWindow = 3

	// InterventionKeepRecent is how many trailing messages survive a
	// context-clearing intervention (besides the system prompt).
	InterventionKeepRecent = 4
)

// ViolationPrefix opens every critical intervention message.
const ViolationPrefix = "[Constitutional Guardian - CRITICAL VIOLATION]"

// Severity grades an assessment.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityCritical
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "none"
	}
}

// Assessment is the verdict on one observed response.
type Assessment struct {
	Severity Severity
	Reasons  []string
}

// Intervention is one logged corrective action.
type Intervention struct {
	AgentID  string    `json:"agent_id"`
	Severity string    `json:"severity"`
	Reasons  []string  `json:"reasons"`
	At       time.Time `json:"at"`
}

// InterventionPlan tells the cycle engine how to correct a misbehaving
// agent.
type InterventionPlan struct {
	// Message is injected into the agent's history with the
	// system_intervention role.
	Message string

	// ClearContext requests trimming history to the system prompt plus
	// the last InterventionKeepRecent messages.
	ClearContext bool

	// ResetStatus requests forcing the agent back to idle.
	ResetStatus bool

	// ImmediateCycle requests scheduling a cycle right away.
	ImmediateCycle bool
}

// record is the per-agent health state.
type record struct {
	emptyCount     int
	identicalCount int
	minimalCount   int

	recentHashes []string

	currentState  string
	cyclesInState int
}

// Monitor tracks response-quality counters for every agent and decides
// when an intervention is warranted.
type Monitor struct {
	mu      sync.Mutex
	records map[string]*record
	log     []Intervention
	now     func() time.Time
	logger  *zap.Logger
}

// NewMonitor creates a health monitor.
func NewMonitor(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		records: make(map[string]*record),
		now:     time.Now,
		logger:  logger,
	}
}

func (m *Monitor) recordFor(agentID string) *record {
	r, ok := m.records[agentID]
	if !ok {
		r = &record{}
		m.records[agentID] = r
	}
	return r
}

// ObserveResponse updates the counters for one completed cycle's cleaned
// response text and returns the resulting assessment.
func (m *Monitor) ObserveResponse(agentID, cleaned string) Assessment {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.recordFor(agentID)
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		r.emptyCount++
	} else {
		r.emptyCount = 0

		h := hashText(cleaned)
		if containsHash(r.recentHashes, h) {
			r.identicalCount++
		} else {
			r.identicalCount = 0
		}
		r.recentHashes = append(r.recentHashes, h)
		if len(r.recentHashes) > recentHashWindow {
			r.recentHashes = r.recentHashes[len(r.recentHashes)-recentHashWindow:]
		}

		if len(cleaned) < MinimalResponseChars {
			r.minimalCount++
		} else {
			r.minimalCount = 0
		}
	}

	var a Assessment
	if r.emptyCount >= EmptyResponseThreshold {
		a.Severity = SeverityCritical
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d consecutive empty responses", r.emptyCount))
	}
	if r.identicalCount >= IdenticalResponseThreshold {
		a.Severity = SeverityCritical
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d consecutive identical responses", r.identicalCount))
	}
	if r.minimalCount >= MinimalResponseThreshold && a.Severity < SeverityCritical {
		a.Severity = SeverityWarning
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d consecutive minimal responses", r.minimalCount))
	}
	return a
}

// ObserveCycleInState counts cycles spent in a workflow state without a
// meaningful action. Changing state resets the counter. Returns a
// warning assessment when the agent looks stuck.
func (m *Monitor) ObserveCycleInState(agentID, state string) Assessment {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.recordFor(agentID)
	if r.currentState != state {
		r.currentState = state
		r.cyclesInState = 0
	}
	r.cyclesInState++

	if r.cyclesInState >= StuckStateThreshold {
		return Assessment{
			Severity: SeverityWarning,
			Reasons:  []string{fmt.Sprintf("%d cycles in state %s without progress", r.cyclesInState, state)},
		}
	}
	return Assessment{}
}

// ObserveMeaningfulAction resets the misbehavior counters after the agent
// does real work (a tool execution, a state change, a routed message).
func (m *Monitor) ObserveMeaningfulAction(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.recordFor(agentID)
	r.emptyCount = 0
	r.identicalCount = 0
	r.minimalCount = 0
	r.cyclesInState = 0
}

// PlanIntervention converts a non-clean assessment into a corrective
// plan, logging it. Returns nil for SeverityNone.
func (m *Monitor) PlanIntervention(agentID string, a Assessment) *InterventionPlan {
	if a.Severity == SeverityNone {
		return nil
	}

	m.mu.Lock()
	m.log = append(m.log, Intervention{
		AgentID:  agentID,
		Severity: a.Severity.String(),
		Reasons:  append([]string(nil), a.Reasons...),
		At:       m.now(),
	})
	r := m.recordFor(agentID)
	r.emptyCount = 0
	r.identicalCount = 0
	r.minimalCount = 0
	r.cyclesInState = 0
	m.mu.Unlock()

	reasons := strings.Join(a.Reasons, "; ")
	if a.Severity == SeverityCritical {
		return &InterventionPlan{
			Message: fmt.Sprintf("%s Your recent behavior violates operating requirements: %s. "+
				"Stop repeating yourself. Take one concrete action now: call a tool, send a message, "+
				"or request a state change.", ViolationPrefix, reasons),
			ClearContext:   true,
			ResetStatus:    true,
			ImmediateCycle: true,
		}
	}
	return &InterventionPlan{
		Message: fmt.Sprintf("[Constitutional Guardian] Guidance: %s. Review your current state's "+
			"instructions and make concrete progress on your next turn.", reasons),
		ResetStatus: true,
	}
}

// Interventions returns a copy of the intervention log.
func (m *Monitor) Interventions() []Intervention {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Intervention(nil), m.log...)
}

// Forget drops all health state for an agent (agent deletion).
func (m *Monitor) Forget(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, agentID)
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func containsHash(hashes []string, h string) bool {
	for _, x := range hashes {
		if x == h {
			return true
		}
	}
	return false
}

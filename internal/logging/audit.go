package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES - one per fact predicate
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Run lifecycle -> run_event/4
	AuditRunStart AuditEventType = "run_start"
	AuditRunEnd   AuditEventType = "run_end"

	// Rounds -> round_event/5
	AuditRoundStart AuditEventType = "round_start"
	AuditRoundEnd   AuditEventType = "round_end"

	// Per-task outcomes -> task_verdict/6, task_repair/6
	AuditTaskVerdict AuditEventType = "task_verdict"
	AuditTaskRepair  AuditEventType = "task_repair"

	// Collaborator calls -> llm_call/5
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"

	// Artifact processes -> process_exec/6
	AuditProcessExec AuditEventType = "process_exec"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent is one JSON line in the audit log. Fact carries the same event
// as a predicate so logs can be grepped or loaded as facts.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`    // Unix milliseconds
	EventType  AuditEventType         `json:"event"` // Maps to fact predicate
	RunID      string                 `json:"run"`   // Run correlation
	Round      int                    `json:"round,omitempty"`
	Target     string                 `json:"target"` // Task id, model or binary
	Status     string                 `json:"status,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Fact       string                 `json:"fact"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger writes audit events, optionally scoped to a run.
type AuditLogger struct {
	runID string
}

// InitAudit opens <logs>/<date>_audit.log. It is a no-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	loggersMu.RLock()
	dir := logsDir
	loggersMu.RUnlock()
	if dir == "" {
		return fmt.Errorf("logging not initialized")
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(dir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	fmt.Fprintf(auditFile, "# Audit log started at %s\n", time.Now().Format(time.RFC3339))
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the unscoped audit logger
func Audit() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRun creates an audit logger scoped to a run
func AuditWithRun(runID string) *AuditLogger {
	return &AuditLogger{runID: runID}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RunID == "" {
		event.RunID = a.runID
	}
	event.Fact = generateFact(event)

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

// generateFact renders an event as a predicate string
func generateFact(e AuditEvent) string {
	switch e.EventType {
	case AuditRunStart, AuditRunEnd:
		return fmt.Sprintf("run_event(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.RunID, e.Status)

	case AuditRoundStart, AuditRoundEnd:
		return fmt.Sprintf("round_event(%d, /%s, \"%s\", %d, %d).",
			e.Timestamp, e.EventType, e.RunID, e.Round, e.DurationMs)

	case AuditTaskVerdict, AuditTaskRepair:
		return fmt.Sprintf("%s(%d, \"%s\", %d, \"%s\", /%s, %d).",
			e.EventType, e.Timestamp, e.RunID, e.Round, escapeString(e.Target), e.Status, e.DurationMs)

	case AuditLLMResponse, AuditLLMError:
		return fmt.Sprintf("llm_call(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, escapeString(e.Target), e.Success, e.DurationMs)

	case AuditProcessExec:
		return fmt.Sprintf("process_exec(%d, \"%s\", \"%s\", /%s, %v, %d).",
			e.Timestamp, e.RunID, escapeString(e.Target), e.Status, e.Success, e.DurationMs)

	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, escapeString(e.Message), e.Success)
	}
}

// escapeString escapes quotes, backslashes and control characters for fact strings.
func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// RunStart logs the start of a convergence run
func (a *AuditLogger) RunStart(tasks int) {
	a.Log(AuditEvent{
		EventType: AuditRunStart,
		Status:    "RUNNING",
		Success:   true,
		Fields:    map[string]interface{}{"tasks": tasks},
		Message:   fmt.Sprintf("Run started with %d tasks", tasks),
	})
}

// RunEnd logs the terminal state of a run
func (a *AuditLogger) RunEnd(state string, rounds int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditRunEnd,
		Status:     state,
		Success:    state == "CONVERGED",
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"rounds": rounds},
		Message:    fmt.Sprintf("Run ended: %s after %d rounds (%dms)", state, rounds, durationMs),
	})
}

// RoundStart logs the start of a round
func (a *AuditLogger) RoundStart(round, tasks int) {
	a.Log(AuditEvent{
		EventType: AuditRoundStart,
		Round:     round,
		Success:   true,
		Fields:    map[string]interface{}{"tasks": tasks},
		Message:   fmt.Sprintf("Round %d started (%d tasks)", round, tasks),
	})
}

// RoundEnd logs the end of a round
func (a *AuditLogger) RoundEnd(round, failing int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditRoundEnd,
		Round:      round,
		Success:    failing == 0,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"failing": failing},
		Message:    fmt.Sprintf("Round %d ended: %d failing (%dms)", round, failing, durationMs),
	})
}

// TaskVerdict logs one artifact's verdict
func (a *AuditLogger) TaskVerdict(round int, taskID, status string, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditTaskVerdict,
		Round:      round,
		Target:     taskID,
		Status:     status,
		Success:    status == "PASSED",
		DurationMs: durationMs,
		Message:    fmt.Sprintf("Task %s: %s (%dms)", taskID, status, durationMs),
	})
}

// TaskRepair logs one repair attempt
func (a *AuditLogger) TaskRepair(round int, taskID, status, rule, kind string) {
	a.Log(AuditEvent{
		EventType: AuditTaskRepair,
		Round:     round,
		Target:    taskID,
		Status:    status,
		Success:   status == "FIXED",
		Fields:    map[string]interface{}{"rule": rule, "kind": kind},
		Message:   fmt.Sprintf("Repair %s: %s (rule=%q, kind=%q)", taskID, status, rule, kind),
	})
}

// LLMCall logs a collaborator API call
func (a *AuditLogger) LLMCall(model string, durationMs int64, success bool, errMsg string) {
	eventType := AuditLLMResponse
	if !success {
		eventType = AuditLLMError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     model,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("LLM call: %s (%dms, success=%v)", model, durationMs, success),
	})
}

// ProcessExec logs a finished artifact process. cpuMs and maxRSSBytes are
// zero when the executor could not collect resource usage.
func (a *AuditLogger) ProcessExec(binary, outcome string, exitCode int, durationMs, cpuMs, maxRSSBytes int64) {
	a.Log(AuditEvent{
		EventType:  AuditProcessExec,
		Target:     binary,
		Status:     outcome,
		Success:    outcome == "complete" && exitCode == 0,
		DurationMs: durationMs,
		Fields: map[string]interface{}{
			"exit_code":     exitCode,
			"cpu_ms":        cpuMs,
			"max_rss_bytes": maxRSSBytes,
		},
		Message: fmt.Sprintf("Process %s: %s exit=%d (%dms, cpu %dms, rss %d bytes)", binary, outcome, exitCode, durationMs, cpuMs, maxRSSBytes),
	})
}

// Package logging provides real-time log output for bus activity.
// The event log is THE audit record. This package provides optional
// console output for monitoring, derived from dispatch lifecycle events.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
// This is for real-time monitoring only - audit queries use the event log.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Bus lifecycle logging methods ---
// These are called by the controller alongside event log appends.
// They provide real-time console output without duplicating data.

// Dispatch logs a successful dispatch (real-time output).
func (l *Logger) Dispatch(agentID, method string, duration time.Duration) {
	l.Debug("dispatch", map[string]interface{}{
		"agent":    agentID,
		"method":   method,
		"duration": duration.String(),
	})
}

// DispatchFailed logs a failed dispatch.
func (l *Logger) DispatchFailed(agentID, method string, err error) {
	l.Warn("dispatch_failed", map[string]interface{}{
		"agent":  agentID,
		"method": method,
		"error":  err.Error(),
	})
}

// BreakerTrip logs a circuit breaker trip.
func (l *Logger) BreakerTrip(agentID string, failures int) {
	l.Error("circuit_breaker_tripped", map[string]interface{}{
		"agent":    agentID,
		"failures": failures,
	})
}

// BreakerRecovered logs a breaker returning to closed.
func (l *Logger) BreakerRecovered(agentID string) {
	l.Info("circuit_breaker_closed", map[string]interface{}{
		"agent": agentID,
	})
}

// AgentRegistered logs a new registration.
func (l *Logger) AgentRegistered(agentID, role string) {
	l.Info("agent_registered", map[string]interface{}{
		"agent": agentID,
		"role":  role,
	})
}

// AgentUnregistered logs a removal.
func (l *Logger) AgentUnregistered(agentID string) {
	l.Info("agent_unregistered", map[string]interface{}{
		"agent": agentID,
	})
}

// PipelineStage logs pipeline stage progress.
func (l *Logger) PipelineStage(pipelineID string, stage int) {
	l.Debug("pipeline_stage", map[string]interface{}{
		"pipeline": pipelineID,
		"stage":    stage,
	})
}

// PipelineDone logs a pipeline reaching a terminal state.
func (l *Logger) PipelineDone(pipelineID, status string, duration time.Duration) {
	l.Info("pipeline_done", map[string]interface{}{
		"pipeline": pipelineID,
		"status":   status,
		"duration": duration.String(),
	})
}

// HealthSweep logs the outcome of a health check sweep.
func (l *Logger) HealthSweep(total, unhealthy int) {
	fields := map[string]interface{}{
		"agents":    total,
		"unhealthy": unhealthy,
	}
	if unhealthy > 0 {
		l.Warn("health_sweep", fields)
	} else {
		l.Debug("health_sweep", fields)
	}
}

// EmergencyShutdown logs an emergency shutdown.
func (l *Logger) EmergencyShutdown(reason string, dropped int) {
	l.Error("emergency_shutdown", map[string]interface{}{
		"reason":  reason,
		"dropped": dropped,
	})
}

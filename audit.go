package dnsresolver

import (
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Log is the package's ambient logger for its own operability. It receives
// server-discovery failures during roster refresh, and it is the logger
// LogrusAudit falls back to when its own Logger is nil. The engine does not
// log its per-attempt decisions (retries, fallback, cache hits) here; those
// are reported only through Audit (below), the caller-consumed
// structured-event capability named in §1. Log defaults to discarding
// everything; set dnsresolver.Log to a *logrus.Logger (or any
// logrus.FieldLogger) to see these messages.
//
// This mirrors the teacher-adjacent folbricht-routedns package's exported
// `Log` variable, generalized from its Logger interface to logrus directly
// since logrus is already part of this module's dependency graph.
var Log logrus.FieldLogger = newSilentLogger()

func newSilentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// AuditEvent is the structured payload handed to an Audit sink for each
// query attempt. Its Audit.Emit call is the only thing the core assumes
// about string formatting of an event: formatting it into text is the
// sink's job (§1: "its string output is opaque").
type AuditEvent struct {
	QueryID   uuid.UUID
	Question  Question
	Server    string
	Attempt   int    // 1-based try count for this server
	Transport string // "udp" or "tcp"
	Outcome   string // "success", "truncated", "dns_error", "timeout", ...
	RTT       int64  // nanoseconds
	Err       error
}

// Audit is the structured event sink named in §1. The core never formats
// text itself; it only calls Emit. The default NoopAudit discards events.
type Audit interface {
	Emit(AuditEvent)
}

// NoopAudit discards every event. It is the default when a Resolver is not
// configured with an Audit sink.
type NoopAudit struct{}

// Emit implements Audit.
func (NoopAudit) Emit(AuditEvent) {}

// LogrusAudit renders AuditEvents through a logrus.FieldLogger, matching
// the structured-fields style folbricht-routedns uses for its own request
// logging (dnsclient.go's Log.WithFields(logrus.Fields{...})).
type LogrusAudit struct {
	Logger logrus.FieldLogger
}

// Emit implements Audit.
func (a LogrusAudit) Emit(e AuditEvent) {
	logger := a.Logger
	if logger == nil {
		logger = Log
	}

	entry := logger.WithFields(logrus.Fields{
		"query_id":  e.QueryID.String(),
		"qname":     e.Question.Name,
		"qtype":     e.Question.typeName(),
		"server":    e.Server,
		"attempt":   e.Attempt,
		"transport": e.Transport,
		"outcome":   e.Outcome,
		"rtt_ms":    e.RTT / int64(1e6),
	})

	if e.Err != nil {
		entry.WithError(e.Err).Debug("dns query attempt")
		return
	}
	entry.Debug("dns query attempt")
}

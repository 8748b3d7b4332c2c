// Package audit writes security, error and audit events to append-only JSON files.
package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/org/servercatalog/pkg/models"
)

const (
	SecurityFile = "security.log"
	ErrorFile    = "errors.log"
	AuditFile    = "audit.log"

	eventAudit = "AUDIT"
)

// Session identifies where an audited action came from.
type Session struct {
	IP        string
	UserAgent string
}

// sink is one log file. Writes never fail from the caller's point of view:
// errors are reported on the process logger and dropped.
type sink struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func openSink(path string) (*sink, error) {
	s := &sink{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.path, err)
	}
	s.file = f
	return nil
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		log.Error().Str("file", s.path).Msg("log sink closed, event dropped")
		return len(p), nil
	}
	if _, err := s.file.Write(p); err != nil {
		log.Error().Err(err).Str("file", s.path).Msg("writing log entry")
	}
	return len(p), nil
}

// rotate renames the file to <path>.<date> unless that name is taken.
func (s *sink) rotate(date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path + "." + date
	if _, err := os.Stat(target); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", target, err)
	}
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	if err := os.Rename(s.path, target); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.open() //nolint:errcheck
		return fmt.Errorf("rotating %s: %w", s.path, err)
	}
	return s.open()
}

func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Logger is the process-wide security event sink. Create one at startup
// with NewLogger, share it, and Close it at shutdown.
type Logger struct {
	dir      string
	security *sink
	errors   *sink
	audit    *sink
	secLog   zerolog.Logger
	errLog   zerolog.Logger
	auditLog zerolog.Logger
	pid      int
	now      func() time.Time

	// Observe, if set, is called for every security event after it is written.
	Observe func(kind string, severity models.Severity)
}

// NewLogger opens (creating if needed) the three log files under dir.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	l := &Logger{dir: dir, pid: os.Getpid(), now: time.Now}

	var err error
	if l.security, err = openSink(filepath.Join(dir, SecurityFile)); err != nil {
		return nil, err
	}
	if l.errors, err = openSink(filepath.Join(dir, ErrorFile)); err != nil {
		l.security.close() //nolint:errcheck
		return nil, err
	}
	if l.audit, err = openSink(filepath.Join(dir, AuditFile)); err != nil {
		l.security.close() //nolint:errcheck
		l.errors.close()   //nolint:errcheck
		return nil, err
	}

	l.secLog = zerolog.New(l.security).With().Timestamp().Int("pid", l.pid).Logger()
	l.errLog = zerolog.New(l.errors).With().Timestamp().Int("pid", l.pid).Logger()
	l.auditLog = zerolog.New(l.audit).With().Timestamp().Int("pid", l.pid).Logger()
	return l, nil
}

// Dir returns the directory holding the log files.
func (l *Logger) Dir() string { return l.dir }

// LogEvent appends a security event. HIGH and CRITICAL events are also
// written to the console.
func (l *Logger) LogEvent(kind string, severity models.Severity, fields map[string]any) {
	masked := Mask(fields)
	l.secLog.Log().
		Str("eventType", kind).
		Str("severity", string(severity)).
		Fields(masked).
		Send()

	if severity == models.SeverityHigh || severity == models.SeverityCritical {
		log.Warn().
			Str("eventType", kind).
			Str("severity", string(severity)).
			Fields(masked).
			Msg("security alert")
	}
	if l.Observe != nil {
		l.Observe(kind, severity)
	}
}

// LogError appends err with its request context to the error log.
func (l *Logger) LogError(err error, fields map[string]any) {
	if err == nil {
		return
	}
	l.errLog.Log().
		Str("eventType", models.EventErrorOccurred).
		Str("severity", string(models.SeverityMedium)).
		Dict("error", zerolog.Dict().
			Str("message", err.Error()).
			Str("name", fmt.Sprintf("%T", err))).
		Interface("context", Mask(fields)).
		Send()
}

// LogAudit records an action taken by principal on resource.
func (l *Logger) LogAudit(action string, p *models.Principal, session Session, resource, result string) {
	ev := l.auditLog.Log().
		Str("eventType", eventAudit).
		Str("severity", string(models.SeverityLow)).
		Str("action", action)
	if p != nil {
		ev = ev.Dict("user", zerolog.Dict().Str("id", p.ID).Str("role", p.Role))
	} else {
		ev = ev.Interface("user", nil)
	}
	ev.Str("resource", resource).
		Str("result", result).
		Dict("sessionInfo", zerolog.Dict().
			Str("userAgent", session.UserAgent).
			Str("ip", session.IP)).
		Send()
}

// Rotate moves each log file aside under a dated name and starts a new one.
func (l *Logger) Rotate() error {
	date := l.now().UTC().Format("2006-01-02")
	var errs []error
	for _, s := range []*sink{l.security, l.errors, l.audit} {
		if err := s.rotate(date); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run rotates the files every interval until ctx is cancelled.
func (l *Logger) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Rotate(); err != nil {
				log.Error().Err(err).Msg("log rotation failed")
			}
		}
	}
}

// Close flushes and closes every file.
func (l *Logger) Close() error {
	return errors.Join(l.security.close(), l.errors.close(), l.audit.close())
}

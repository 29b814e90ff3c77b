package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Module tags understood by the console handler.
const (
	TagBootstrap     = "bootstrap"
	TagHTTP          = "http"
	TagStream        = "stream"
	TagAuth          = "auth"
	TagMirror        = "mirror"
	TagAutomation    = "automation"
	TagTaxi          = "taxi"
	TagRewards       = "rewards"
	TagEpic          = "epic"
	TagStorage       = "storage"
	TagObservability = "observability"
)

const defaultRetentionDays = 7

// Logger is the format-style logging surface every domain package depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config captures logging configuration options.
type Config struct {
	Level         string
	Dir           string
	Filename      string
	RetentionDays int

	// Console overrides stdout for the colored handler. Tests pass a buffer.
	Console io.Writer
}

// Provider fans every record out to a colored console handler and, when a
// directory is configured, a JSON file that rotates daily.
type Provider struct {
	cfg         Config
	level       slog.Level
	textLogger  *slog.Logger
	jsonLogger  *slog.Logger
	logFile     *os.File
	currentDate string

	mu        sync.RWMutex
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeOnce sync.Once
}

// New creates a Provider. An empty Dir disables the file handler.
func New(cfg Config) (*Provider, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}

	level := ParseLevel(cfg.Level)
	p := &Provider{
		cfg:         cfg,
		level:       level,
		textLogger:  slog.New(&consoleHandler{writer: console, level: level}),
		currentDate: time.Now().Format("2006-01-02"),
		stopCh:      make(chan struct{}),
	}

	if cfg.Dir != "" {
		if cfg.Filename == "" {
			cfg.Filename = "partybot.log"
			p.cfg.Filename = cfg.Filename
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(filepath.Join(cfg.Dir, cfg.Filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		p.logFile = file
		p.jsonLogger = slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}))
		p.startRotationChecker()
	}

	return p, nil
}

// ParseLevel maps a config level name to slog. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (p *Provider) startRotationChecker() {
	p.ticker = time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-p.ticker.C:
				today := time.Now().Format("2006-01-02")
				if today != p.currentDate {
					p.rotate(today)
					p.cleanOldLogs()
				}
			case <-p.stopCh:
				return
			}
		}
	}()
}

func (p *Provider) rotate(newDate string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.logFile != nil {
		_ = p.logFile.Close()
	}

	current := filepath.Join(p.cfg.Dir, p.cfg.Filename)
	ext := filepath.Ext(p.cfg.Filename)
	base := strings.TrimSuffix(p.cfg.Filename, ext)
	archived := filepath.Join(p.cfg.Dir, fmt.Sprintf("%s-%s%s", base, p.currentDate, ext))

	if _, err := os.Stat(current); err == nil {
		if err := os.Rename(current, archived); err != nil {
			p.textLogger.Error("rename log file failed", slog.String("error", err.Error()))
		}
	}

	file, err := os.OpenFile(current, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		p.textLogger.Error("reopen log file failed", slog.String("error", err.Error()))
		p.logFile = nil
		p.jsonLogger = nil
		return
	}

	p.logFile = file
	p.currentDate = newDate
	p.jsonLogger = slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: p.level}))
}

func (p *Provider) cleanOldLogs() {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -p.cfg.RetentionDays)
	ext := filepath.Ext(p.cfg.Filename)
	prefix := strings.TrimSuffix(p.cfg.Filename, ext) + "-"

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext))
		if err != nil || !date.Before(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(p.cfg.Dir, name))
	}
}

// Close stops rotation and closes the log file. Safe to call more than once.
func (p *Provider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.ticker != nil {
			p.ticker.Stop()
		}
		close(p.stopCh)

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.logFile != nil {
			err = p.logFile.Close()
			p.logFile = nil
			p.jsonLogger = nil
		}
	})
	return err
}

func (p *Provider) log(level slog.Level, msg string, args ...any) {
	if p == nil {
		return
	}
	var attrs []slog.Attr
	if len(args) > 0 {
		if strings.Contains(msg, "%") {
			msg = fmt.Sprintf(msg, args...)
		} else {
			attrs = toAttrs(args)
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	ctx := context.Background()
	if p.jsonLogger != nil {
		p.jsonLogger.LogAttrs(ctx, level, msg, attrs...)
	}
	p.textLogger.LogAttrs(ctx, level, msg, attrs...)
}

// toAttrs accepts either a single map of fields or slog-style key/value pairs.
func toAttrs(args []any) []slog.Attr {
	if fields, ok := args[0].(map[string]any); ok && len(args) == 1 {
		attrs := make([]slog.Attr, 0, len(fields))
		for k, v := range fields {
			attrs = append(attrs, slog.Any(k, v))
		}
		return attrs
	}
	r := slog.NewRecord(time.Time{}, slog.LevelInfo, "", 0)
	r.Add(args...)
	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	return attrs
}

// Debug logs at debug level. A message containing % is treated as a format
// string, otherwise args are structured attributes.
func (p *Provider) Debug(msg string, args ...any) { p.log(slog.LevelDebug, msg, args...) }

func (p *Provider) Info(msg string, args ...any) { p.log(slog.LevelInfo, msg, args...) }

func (p *Provider) Warn(msg string, args ...any) { p.log(slog.LevelWarn, msg, args...) }

func (p *Provider) Error(msg string, args ...any) { p.log(slog.LevelError, msg, args...) }

// FormatLog builds "[tag] message". Messages that already carry a tag are
// returned unchanged.
func FormatLog(tag, message string) string {
	tag = strings.TrimSpace(tag)
	message = strings.TrimSpace(message)
	if tag == "" || strings.HasPrefix(message, "[") {
		return message
	}
	return fmt.Sprintf("[%s] %s", tag, message)
}

func (p *Provider) DebugTag(tag, msg string, args ...any) {
	p.log(slog.LevelDebug, FormatLog(tag, msg), args...)
}

func (p *Provider) InfoTag(tag, msg string, args ...any) {
	p.log(slog.LevelInfo, FormatLog(tag, msg), args...)
}

func (p *Provider) WarnTag(tag, msg string, args ...any) {
	p.log(slog.LevelWarn, FormatLog(tag, msg), args...)
}

func (p *Provider) ErrorTag(tag, msg string, args ...any) {
	p.log(slog.LevelError, FormatLog(tag, msg), args...)
}

// Slog exposes the console logger for libraries that want a *slog.Logger.
func (p *Provider) Slog() *slog.Logger {
	return p.textLogger
}

// Tagged returns a Logger that prefixes every message with tag.
func Tagged(base Logger, tag string) Logger {
	if base == nil {
		base = Nop()
	}
	return &tagged{base: base, tag: tag}
}

type tagged struct {
	base Logger
	tag  string
}

func (t *tagged) Debug(msg string, args ...any) { t.base.Debug(FormatLog(t.tag, msg), args...) }
func (t *tagged) Info(msg string, args ...any)  { t.base.Info(FormatLog(t.tag, msg), args...) }
func (t *tagged) Warn(msg string, args ...any)  { t.base.Warn(FormatLog(t.tag, msg), args...) }
func (t *tagged) Error(msg string, args ...any) { t.base.Error(FormatLog(t.tag, msg), args...) }

// Nop discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

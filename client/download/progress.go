package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Reporter observes a single download. Begin hands over the counters the
// downloader updates; they are only valid until Close returns. Update is
// called once per chunk with its length, after the counters advanced.
// Close receives the error the download ended with, nil on success.
type Reporter interface {
	Begin(p *Progress)
	Update(n int)
	Close(err error)
}

// Nop is a Reporter that does nothing.
type Nop struct{}

func (Nop) Begin(*Progress) {}
func (Nop) Update(int)      {}
func (Nop) Close(error)     {}

// multi fans out to several reporters.
type multi []Reporter

// Reporters combines rs into one Reporter. Nil entries are skipped.
func Reporters(rs ...Reporter) Reporter {
	var m multi
	for _, r := range rs {
		if r != nil {
			m = append(m, r)
		}
	}

	switch len(m) {
	case 0:
		return Nop{}
	case 1:
		return m[0]
	}

	return m
}

func (m multi) Begin(p *Progress) {
	for _, r := range m {
		r.Begin(p)
	}
}

func (m multi) Update(n int) {
	for _, r := range m {
		r.Update(n)
	}
}

func (m multi) Close(err error) {
	for _, r := range m {
		r.Close(err)
	}
}

// logReporter logs download progress at most once per interval.
type logReporter struct {
	logger    *slog.Logger
	interval  time.Duration
	p         *Progress
	startTime time.Time
	lastLog   time.Time
}

// NewLogReporter returns a Reporter writing slog records: the total size
// when known, a debug record per chunk, a periodic "downloading" record
// and a final "download finished" record with the byte count. A failed
// download ends with a "download aborted" warning carrying the error.
func NewLogReporter(logger *slog.Logger) Reporter {
	return &logReporter{
		logger:   logger,
		interval: time.Second,
	}
}

func (lr *logReporter) Begin(p *Progress) {
	lr.p = p
	lr.startTime = time.Now()
	lr.lastLog = lr.startTime

	if p.Known() {
		lr.logger.Info("total size", "bytes", p.Total)
	}
}

func (lr *logReporter) Update(n int) {
	lr.logger.Debug("chunk received", "size", n)

	if time.Since(lr.lastLog) >= lr.interval {
		lr.lastLog = time.Now()
		lr.log(slog.LevelInfo, "downloading")
	}
}

func (lr *logReporter) Close(err error) {
	if err != nil {
		lr.log(slog.LevelWarn, "download aborted", "error", err)
		return
	}
	lr.log(slog.LevelInfo, "download finished")
}

func (lr *logReporter) log(level slog.Level, msg string, extra ...any) {
	elapsed := time.Since(lr.startTime)
	attrs := []any{
		"transferred", lr.p.Transferred,
		"total", lr.p.Total,
		"elapsed", elapsed.Round(time.Millisecond),
	}
	if lr.p.Known() {
		attrs = append(attrs, "progress", fmt.Sprintf("%.1f%%", lr.p.Percent()))
	}
	if secs := elapsed.Seconds(); secs > 0 {
		attrs = append(attrs, "mbps", fmt.Sprintf("%.2f", float64(lr.p.Transferred)/secs/(1024*1024)))
	}
	lr.logger.Log(context.Background(), level, msg, append(attrs, extra...)...)
}

// Meter draws a single-line console progress meter. Without a known
// total it shows bytes and speed only.
type Meter struct {
	out      io.Writer
	interval time.Duration
	p        *Progress
	start    time.Time
	lastDraw time.Time
}

// NewMeter returns a Meter writing to out, redrawn at most every 200ms.
func NewMeter(out io.Writer) *Meter {
	return &Meter{
		out:      out,
		interval: 200 * time.Millisecond,
	}
}

func (m *Meter) Begin(p *Progress) {
	m.p = p
	m.start = time.Now()
}

func (m *Meter) Update(int) {
	if time.Since(m.lastDraw) < m.interval {
		return
	}
	m.lastDraw = time.Now()
	m.draw("    ")
}

func (m *Meter) Close(err error) {
	if err != nil {
		m.draw(" | failed\n")
		return
	}
	m.draw(" | done\n")
}

func (m *Meter) draw(suffix string) {
	elapsed := time.Since(m.start).Seconds()
	if elapsed < 0.001 {
		elapsed = 0.001
	}
	speed := int64(float64(m.p.Transferred) / elapsed)

	if m.p.Known() {
		fmt.Fprintf(m.out, "\r[obplatform] %.1f%% | %s / %s | %s/s%s",
			m.p.Percent(),
			FormatBytes(m.p.Transferred),
			FormatBytes(m.p.Total),
			FormatBytes(speed),
			suffix,
		)
		return
	}

	fmt.Fprintf(m.out, "\r[obplatform] %s | %s/s%s",
		FormatBytes(m.p.Transferred),
		FormatBytes(speed),
		suffix,
	)
}

// FormatBytes formats b as a human-readable string.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// ParseBytes parses a size such as "1000KB", "4 MB" or "512".
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))

	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, unit.suffix))
			break
		}
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	return int64(value * float64(multiplier)), nil
}

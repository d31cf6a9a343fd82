package authcore

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// syslogPriority is facility local0 (16) * 8 + severity info (6), the
// prefix the collector expects on every line.
const syslogPriority = 134

// syslogStamp is the timestamp layout used in the wire line.
const syslogStamp = "Jan 02 15:04:05"

// SyslogForwarder delivers audit events to an external collector as
// line-oriented syslog records over TCP or UDP. Delivery is best
// effort: entries flow through a bounded queue serviced by a single
// worker, transport errors divert the line to a local fallback log, and
// nothing here can fail or delay the operation that produced the entry.
type SyslogForwarder struct {
	host         string
	port         int
	protocol     string
	appTag       string
	fallbackPath string
	timeout      time.Duration
	hostname     string

	queue   chan *AuditEntry
	done    chan struct{}
	stopped chan struct{}

	// conn is the persistent TCP connection, owned by the worker
	conn net.Conn

	dropped atomic.Int64
	logger  Logger
}

// NewSyslogForwarder creates the forwarder and starts its worker. An
// empty collector host disables the network hop: entries are consumed
// and discarded without error.
func NewSyslogForwarder(cfg Config, logger Logger) *SyslogForwarder {
	cfg = cfg.WithDefaults()

	if logger == nil {
		logger = defLogger{}
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}

	f := &SyslogForwarder{
		host:         cfg.CollectorHost,
		port:         cfg.CollectorPort,
		protocol:     strings.ToLower(cfg.CollectorProtocol),
		appTag:       cfg.AppTag,
		fallbackPath: cfg.FallbackLogPath,
		timeout:      cfg.ForwardTimeout,
		hostname:     hostname,
		queue:        make(chan *AuditEntry, cfg.ForwardQueueSize),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		logger:       logger,
	}

	go f.run()

	return f
}

// Enqueue hands an entry to the worker without blocking. When the queue
// is full the oldest queued entry is dropped to make room; drops are
// counted and logged locally.
func (f *SyslogForwarder) Enqueue(entry *AuditEntry) {
	if entry == nil {
		return
	}

	select {
	case f.queue <- entry:
		return
	default:
	}

	// queue full, drop the oldest entry
	select {
	case <-f.queue:
		f.dropped.Add(1)
		f.logger.Warn("forward queue full, dropped oldest event", "dropped_total", f.dropped.Load())
	default:
	}

	select {
	case f.queue <- entry:
	default:
		f.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded because the collector
// could not keep up.
func (f *SyslogForwarder) Dropped() int64 {
	return f.dropped.Load()
}

// Close stops the worker after draining whatever is already queued.
func (f *SyslogForwarder) Close() {
	close(f.done)
	<-f.stopped
}

func (f *SyslogForwarder) run() {
	defer close(f.stopped)

	for {
		select {
		case entry := <-f.queue:
			f.send(entry)
		case <-f.done:
			for {
				select {
				case entry := <-f.queue:
					f.send(entry)
				default:
					f.closeConn()
					return
				}
			}
		}
	}
}

func (f *SyslogForwarder) send(entry *AuditEntry) {
	line := f.formatLine(entry)

	if f.host == "" {
		// no collector configured, network hop disabled
		return
	}

	if err := f.transmit(line); err != nil {
		f.logger.Warn("forward to collector failed, retaining locally", "error", err)
		f.writeFallback(line)
	}
}

func (f *SyslogForwarder) transmit(line string) error {
	if f.protocol == "udp" {
		conn, err := net.DialTimeout("udp", f.addr(), f.timeout)
		if err != nil {
			return err
		}
		defer conn.Close()

		_ = conn.SetWriteDeadline(time.Now().Add(f.timeout))
		_, err = conn.Write([]byte(line))
		return err
	}

	if f.conn == nil {
		conn, err := net.DialTimeout("tcp", f.addr(), f.timeout)
		if err != nil {
			return err
		}
		f.conn = conn
	}

	_ = f.conn.SetWriteDeadline(time.Now().Add(f.timeout))
	if _, err := f.conn.Write([]byte(line + "\n")); err != nil {
		f.closeConn()
		return err
	}

	return nil
}

func (f *SyslogForwarder) closeConn() {
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

func (f *SyslogForwarder) addr() string {
	return net.JoinHostPort(f.host, strconv.Itoa(f.port))
}

// formatLine renders the collector wire record: a priority prefix, a
// timestamp, the host identifier, the application tag, and the
// type/details payload.
func (f *SyslogForwarder) formatLine(entry *AuditEntry) string {
	stamp := entry.CreatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}

	payload := map[string]any{
		"event_type": entry.Action,
		"username":   entry.Username,
		"ip_address": entry.SourceAddr,
		"status":     entry.Outcome,
		"timestamp":  stamp.UTC().Format(time.RFC3339),
	}
	if len(entry.Details) > 0 {
		payload["details"] = entry.Details
	}

	details, err := json.Marshal(payload)
	if err != nil {
		details = []byte(fmt.Sprintf(`{"event_type":%q}`, entry.Action))
	}

	return fmt.Sprintf(`<%d>%s %s %s: type="%s" details="%s"`,
		syslogPriority,
		stamp.UTC().Format(syslogStamp),
		f.hostname,
		f.appTag,
		entry.Action,
		details,
	)
}

func (f *SyslogForwarder) writeFallback(line string) {
	file, err := os.OpenFile(f.fallbackPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		f.logger.Error("failed to open fallback log", "path", f.fallbackPath, "error", err)
		return
	}
	defer file.Close()

	if _, err := file.WriteString(line + "\n"); err != nil {
		f.logger.Error("failed to write fallback log", "path", f.fallbackPath, "error", err)
	}
}

// Package audit implements the async, buffered audit log writer that backs
// every operator-visible mutation in the control plane.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/hrctl/internal/auth"
	"github.com/wisbric/hrctl/internal/db"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Entry represents a single audit log entry to be written.
type Entry struct {
	TenantID   tenant.ID
	UserID     *uuid.UUID
	APIKeyID   *uuid.UUID
	Action     string
	Resource   string
	ResourceID string
	Detail     json.RawMessage
	IPAddress  *netip.Addr
	UserAgent  *string
	// ActedAsOperator is set when the write was performed via an operator
	// bypass scope (pkg/isolation.OperatorScope), independent of the
	// tenant the entry is filed under.
	ActedAsOperator bool
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine.
type Writer struct {
	db      db.DBTX
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup

	failures func()
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
// onFlushFailure, if non-nil, is invoked once per entry that fails to write
// (wired to internal/telemetry's AuditWriteFailuresTotal counter).
func NewWriter(dbtx db.DBTX, logger *slog.Logger, onFlushFailure func()) *Writer {
	if onFlushFailure == nil {
		onFlushFailure = func() {}
	}
	return &Writer{
		db:       dbtx,
		logger:   logger,
		entries:  make(chan Entry, bufferSize),
		failures: onFlushFailure,
	}
}

// Start begins the background goroutine that flushes audit entries to the database.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning is logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "resource", entry.Resource)
	}
}

// LogFromRequest extracts identity, tenant, IP, and user agent from the
// request context, then enqueues the entry.
func (w *Writer) LogFromRequest(r *http.Request, action, resource, resourceID string, detail json.RawMessage) {
	entry := Entry{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Detail:     detail,
	}

	if ti := tenant.FromContext(r.Context()); ti != nil {
		entry.TenantID = ti.ID
	}

	if id := auth.FromContext(r.Context()); id != nil {
		entry.UserID = id.UserID
		entry.APIKeyID = id.APIKeyID
		entry.ActedAsOperator = id.IsSuperAdmin
	}

	ip := clientIP(r)
	if ip.IsValid() {
		entry.IPAddress = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}

	w.Log(entry)
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the shared audit_log table. Row-level
// isolation means every entry lands in the same table regardless of tenant;
// tenant id is only a column value and a log field, not a connection switch.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		_, err := w.db.Exec(ctx,
			`INSERT INTO audit_log
				(tenant_id, user_id, api_key_id, action, resource, resource_id,
				 detail, ip_address, user_agent, acted_as_operator, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
			e.TenantID, e.UserID, e.APIKeyID, e.Action, e.Resource, e.ResourceID,
			e.Detail, ipString(e.IPAddress), e.UserAgent, e.ActedAsOperator,
		)
		if err != nil {
			w.logger.Error("writing audit log entry", "error", err,
				"action", e.Action, "resource", e.Resource, "tenant_id", e.TenantID)
			w.failures()
		}
	}
}

func ipString(ip *netip.Addr) *string {
	if ip == nil {
		return nil
	}
	s := ip.String()
	return &s
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}

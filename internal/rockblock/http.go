package rockblock

import (
	"encoding/json"
	"io"
	"net/http"
	"net/netip"
	"strings"

	"github.com/google/uuid"
)

// MaxBodySize bounds webhook bodies; RockBLOCK payloads are at most 340
// bytes before hex encoding.
const MaxBodySize = 64 << 10

// ServeHTTP adapts Handle to a webhook endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.NewString()
	}

	// An unreadable body is left empty and rejected as invalid once the
	// origin has been checked.
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))

	out := h.Handle(r.Context(), Request{
		ID:          reqID,
		Origin:      h.origin(r),
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
	})

	w.Header().Set("X-Request-Id", reqID)
	writeOutcome(w, &out)
}

func (h *Handler) origin(r *http.Request) netip.Addr {
	if h.trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return addr.Unmap()
			}
		}
	}

	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap()
	}
	addr, _ := netip.ParseAddr(r.RemoteAddr)
	return addr.Unmap()
}

func writeOutcome(w http.ResponseWriter, out *Outcome) {
	if out.Record != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(out.Status)
		_ = json.NewEncoder(w).Encode(out.Record)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(out.Status)
	_, _ = io.WriteString(w, out.Reason)
}

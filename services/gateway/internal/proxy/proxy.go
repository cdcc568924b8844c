package proxy

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/apartment-reservations/pkg/logger"
	"github.com/diagnosis/apartment-reservations/pkg/response"
)

// hop-by-hop headers are never forwarded
var skipHeaders = map[string]bool{
	"connection":          true,
	"upgrade":             true,
	"proxy-connection":    true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"keep-alive":          true,
}

type ServiceProxy struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewServiceProxy(name, baseURL string) *ServiceProxy {
	return &ServiceProxy{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Forward sends r to path on the upstream service, keeping its method,
// query, body and end-to-end headers, and streams the answer back.
func (p *ServiceProxy) Forward(w http.ResponseWriter, r *http.Request, path string) {
	url := p.baseURL + path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, url, r.Body)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to build upstream request", "error", err, "service", p.name)
		response.InternalError(w, "Internal server error")
		return
	}
	req.ContentLength = r.ContentLength
	copyHeaders(req.Header, r.Header)
	if requestID, ok := r.Context().Value(logger.RequestIDKey).(string); ok {
		req.Header.Set("X-Request-ID", requestID)
	}
	req.Header.Set("X-Gateway-Forwarded", "true")

	logger.DebugContext(r.Context(), "Proxying request", "service", p.name, "method", r.Method, "url", url)

	resp, err := p.client.Do(req)
	if err != nil {
		logger.ErrorContext(r.Context(), "Service proxy error", "error", err, "service", p.name, "path", path)
		response.WriteError(w, http.StatusServiceUnavailable, fmt.Sprintf("%s service unavailable", p.name), "SERVICE_UNAVAILABLE")
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.ErrorContext(r.Context(), "Failed to copy response body", "error", err, "service", p.name)
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if skipHeaders[strings.ToLower(key)] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// copyResponseHeaders drops upstream CORS headers. The gateway sets its own.
func copyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		lower := strings.ToLower(key)
		if skipHeaders[lower] || lower == "vary" || strings.HasPrefix(lower, "access-control-") {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

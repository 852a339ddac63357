package api

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront/internal/util"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// requestIDMiddleware tags each request with an id and a logger carrying it
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(requestIDHeader, id)

		logger := util.GetLogger().With(
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))
		c.Request = c.Request.WithContext(util.WithLogger(c.Request.Context(), logger))

		start := time.Now()
		c.Next()
		logger.Debug("Request served",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// timeoutMiddleware bounds every downstream call made for the request
func timeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// compressMiddleware encodes response bodies with brotli or gzip, whichever
// the client accepts, preferring brotli.
func compressMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Add("Vary", "Accept-Encoding")
		encoding := negotiateEncoding(c.GetHeader("Accept-Encoding"))
		if encoding == "" || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		cw := &compressWriter{ResponseWriter: c.Writer, encoding: encoding}
		c.Writer = cw
		defer func() {
			if err := cw.close(); err != nil {
				util.LoggerFrom(c.Request.Context()).Warn("Failed to finish compressed response",
					zap.String("encoding", encoding), zap.Error(err))
			}
		}()
		c.Next()
	}
}

// negotiateEncoding picks br or gzip from an Accept-Encoding header.
// Codings listed with q=0 are refused.
func negotiateEncoding(header string) string {
	accepted := map[string]bool{}
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(part, ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				continue
			}
		}
		accepted[name] = true
	}
	switch {
	case accepted["br"]:
		return "br"
	case accepted["gzip"]:
		return "gzip"
	}
	return ""
}

// compressWriter starts the encoder on the first body write, once the status
// and headers are final.
type compressWriter struct {
	gin.ResponseWriter
	encoding string
	enc      io.WriteCloser
	bypass   bool
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if w.enc == nil && !w.bypass {
		w.start()
	}
	if w.bypass {
		return w.ResponseWriter.Write(b)
	}
	return w.enc.Write(b)
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *compressWriter) start() {
	h := w.Header()
	switch status := w.Status(); {
	case h.Get("Content-Encoding") != "",
		status == http.StatusNoContent,
		status == http.StatusNotModified,
		status == http.StatusPartialContent:
		w.bypass = true
		return
	}

	h.Set("Content-Encoding", w.encoding)
	h.Del("Content-Length")
	if w.encoding == "br" {
		w.enc = brotli.NewWriterLevel(w.ResponseWriter, brotli.DefaultCompression)
	} else {
		w.enc = gzip.NewWriter(w.ResponseWriter)
	}
}

func (w *compressWriter) Flush() {
	if f, ok := w.enc.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *compressWriter) close() error {
	if w.enc == nil {
		return nil
	}
	return w.enc.Close()
}

// rateLimiter keeps one token bucket per client IP
type rateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	clients  map[string]*clientLimiter
	lastSeen time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(limit rate.Limit, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{limit: limit, burst: burst, clients: map[string]*clientLimiter{}}
}

func (rl *rateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Forget idle clients at most once a minute.
	if now.Sub(rl.lastSeen) > time.Minute {
		for k, cl := range rl.clients {
			if now.Sub(cl.lastSeen) > 3*time.Minute {
				delete(rl.clients, k)
			}
		}
		rl.lastSeen = now
	}

	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP(), time.Now()) {
			util.RateLimitedTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

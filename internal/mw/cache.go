package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type storedResponse struct {
	status int
	header http.Header
	body   []byte
}

// teeWriter duplicates the response body into a buffer while writing it out.
type teeWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *teeWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *teeWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GET requests from an in-memory store. Only 2xx
// responses are stored; everything else passes through untouched. The key is
// the full request URI, so paged and filtered listings cache independently.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if hit, ok := store.Get(key); ok {
			resp := hit.(storedResponse)
			for k, v := range resp.header {
				c.Writer.Header()[k] = v
			}
			c.Writer.WriteHeader(resp.status)
			c.Writer.Write(resp.body)
			c.Abort()
			return
		}

		tee := &teeWriter{ResponseWriter: c.Writer, buf: bytes.NewBuffer(nil)}
		c.Writer = tee
		c.Next()

		if tee.Status() >= 200 && tee.Status() < 300 {
			store.Set(key, storedResponse{
				status: tee.Status(),
				header: tee.Header().Clone(),
				body:   tee.buf.Bytes(),
			}, ttl)
		}
	}
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"minix/internal/objectstore"
	"minix/internal/wire"
)

// handleEvents streams the caller's change events as server-sent events.
// Each message has the event type as its name and a wire.Event as data.
func (s *Server) handleEvents(c echo.Context) error {
	if s.feed == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "change feed not configured")
	}
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	sub, err := s.feed.Subscribe(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("subscribing to changes: %w", err)
	}
	defer sub.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	w.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closing:
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			data, err := json.Marshal(wire.FromEvent(ev))
			if err != nil {
				s.logger.Warn("encoding change event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// handleObject serves a blob of a store whose URLs point at this server.
// Non-public stores require a valid signature.
func (s *Server) handleObject(c echo.Context) error {
	key := strings.TrimPrefix(c.Request().URL.Path, objectsPrefix)
	if key == "" {
		return echo.NewHTTPError(http.StatusNotFound, "object not found")
	}
	if !s.objects.IsPublic() {
		v, ok := s.objects.(objectstore.Verifier)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "object not found")
		}
		q := c.Request().URL.Query()
		if err := v.Verify(key, q.Get("expires"), q.Get("sig")); err != nil {
			return echo.NewHTTPError(http.StatusForbidden, "invalid or expired signature")
		}
	}

	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w := &headerWriter{resp: c.Response(), prepare: func() {
		c.Response().Header().Set(echo.HeaderContentType, ct)
	}}
	if err := s.objects.Download(c.Request().Context(), key, w); err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "object not found")
		}
		return err
	}
	if !w.started {
		// Empty blob.
		c.Response().Header().Set(echo.HeaderContentType, ct)
		return c.NoContent(http.StatusOK)
	}
	return nil
}

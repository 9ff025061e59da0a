package utils

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/labstack/echo/v4"
)

func HttpLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		log.Tracef("%4s %s %v", c.Request().Method, c.Request().URL, c.Response().Status)
		return err
	}
}

// NewEcho returns a quiet echo router with request tracing enabled.
func NewEcho() *echo.Echo {
	r := echo.New()
	r.HideBanner = true
	r.HidePort = true
	r.Use(HttpLogger)
	return r
}

// ServeHttp serves r on addr until ctx is cancelled, then shuts the
// server down gracefully.
func ServeHttp(ctx context.Context, r *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening on http", addr)
		errCh <- r.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

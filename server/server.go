// Package server hosts the inbound HTTP surface: platform webhooks,
// health, and metrics.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/crewmind/crewmind/ai/metrics"
	"github.com/crewmind/crewmind/ai/orchestrator"
	"github.com/crewmind/crewmind/internal/profile"
	"github.com/crewmind/crewmind/plugin/teamchat"
	"github.com/crewmind/crewmind/store"
)

// Caps on inbound handling. The platform redelivers unacknowledged
// events after ~3s, so the webhook must ack fast and do the work
// asynchronously; the semaphore bounds how many orchestrations run at
// once.
const (
	maxBodyBytes          = 1 << 20
	maxConcurrentRequests = 16
)

// Headers the platform signs requests with.
const (
	headerSignature = "X-Slack-Signature"
	headerTimestamp = "X-Slack-Request-Timestamp"
)

// Server is the HTTP front of the assistant.
type Server struct {
	e       *echo.Echo
	Profile *profile.Profile
	Store   *store.Store

	gateway      *teamchat.Gateway
	orchestrator *orchestrator.Orchestrator
	dispatchSem  *semaphore.Weighted

	// baseCtx outlives individual webhook requests; async work hangs
	// off it so in-flight orchestrations survive the 200 ack.
	baseCtx context.Context
}

// NewServer wires the HTTP surface.
func NewServer(ctx context.Context, instanceProfile *profile.Profile, s *store.Store, gateway *teamchat.Gateway, orch *orchestrator.Orchestrator) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	srv := &Server{
		e:            e,
		Profile:      instanceProfile,
		Store:        s,
		gateway:      gateway,
		orchestrator: orch,
		dispatchSem:  semaphore.NewWeighted(maxConcurrentRequests),
		baseCtx:      ctx,
	}

	e.POST("/events/", srv.handleEvents)
	e.POST("/commands/", srv.handleCommands)
	e.POST("/interactive/", srv.handleInteractive)
	e.GET("/healthz", srv.handleHealthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return srv
}

// Start runs the listener until the context is canceled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.e.Start(address)
	}()
	slog.Info("server: listening", "address", address, "mode", s.Profile.Mode)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.e.Shutdown(shutdownCtx)
	}
}

// verified reads the raw body and checks the platform signature.
func (s *Server) verified(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return nil, teamchat.ErrMalformedBody
	}
	signature := c.Request().Header.Get(headerSignature)
	timestamp := c.Request().Header.Get(headerTimestamp)
	if err := s.gateway.Verify(timestamp, signature, body); err != nil {
		return nil, err
	}
	return body, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, teamchat.ErrInvalidSignature):
		return http.StatusForbidden
	case errors.Is(err, teamchat.ErrMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, teamchat.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// handleEvents is the main webhook: verification challenge, dedup,
// classification, and async dispatch. Everything past classification
// happens after the 200 ack.
func (s *Server) handleEvents(c echo.Context) error {
	body, err := s.verified(c)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}

	env, err := s.gateway.Parse(body)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}

	if env.Type == teamchat.EnvelopeURLVerification {
		return c.JSON(http.StatusOK, map[string]string{"challenge": env.Challenge})
	}

	if s.gateway.Seen(s.gateway.Fingerprint(env)) {
		metrics.DedupHits.Inc()
		slog.Debug("server: duplicate event acknowledged", "event_id", env.EventID)
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}

	inbound := s.gateway.Classify(env)
	if inbound != nil {
		s.dispatch(inbound)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// dispatch hands the event to the orchestrator off the webhook
// goroutine.
func (s *Server) dispatch(in *teamchat.Inbound) {
	go func() {
		if err := s.dispatchSem.Acquire(s.baseCtx, 1); err != nil {
			slog.Warn("server: dispatch canceled before start", "event_id", in.EventID)
			return
		}
		defer s.dispatchSem.Release(1)
		s.orchestrator.Handle(s.baseCtx, in)
	}()
}

// handleCommands acknowledges slash commands. The dispatch contract
// only requires a 200 with response JSON; command payloads are
// form-encoded, so the reply goes straight back in the response body.
func (s *Server) handleCommands(c echo.Context) error {
	if _, err := s.verified(c); err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"response_type": "ephemeral",
		"text":          "Working on it.",
	})
}

// handleInteractive acknowledges button and feedback payloads.
func (s *Server) handleInteractive(c echo.Context) error {
	if _, err := s.verified(c); err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleHealthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": s.Profile.Version})
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/numscan/services/scanner/session"
	"github.com/AleutianAI/numscan/services/scanner/telemetry"
)

// healthReport is the /healthz body.
type healthReport struct {
	Status   string        `json:"status"`
	Session  string        `json:"session_id"`
	State    session.State `json:"state"`
	Degraded bool          `json:"degraded"`
	Reason   string        `json:"reason,omitempty"`
	Tested   uint64        `json:"tested"`
	Progress float64       `json:"progress"`
}

// healthOf maps session status to an HTTP status. A degraded session is
// still serving, so it stays 200; a stopped one is 503.
func healthOf(st session.Status) (int, healthReport) {
	r := healthReport{
		Status:   "ok",
		Session:  st.ID,
		State:    st.State,
		Degraded: st.Degraded,
		Reason:   st.DegradedReason,
		Tested:   st.Stats.Tested(),
		Progress: st.Stats.Progress,
	}
	switch {
	case st.State == session.StateStopped:
		r.Status = "stopped"
		return http.StatusServiceUnavailable, r
	case st.Degraded:
		r.Status = "degraded"
	}
	return http.StatusOK, r
}

// newOpsRouter serves /metrics and /healthz. Nothing else is exposed.
func newOpsRouter(status func() session.Status) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("numscan"))

	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	router.GET("/healthz", func(c *gin.Context) {
		code, body := healthOf(status())
		c.JSON(code, body)
	})
	return router
}

func runServe(cmd *cobra.Command, args []string) error {
	gin.SetMode(gin.ReleaseMode)
	return scan(cmd, scanFlags, startOpsServer)
}

// startOpsServer is the scan hook for serve. The returned func shuts the
// server down once the session has stopped.
func startOpsServer(a *app, mgr *session.Manager, id string) func() {
	addr := scanFlags.addr
	if addr == "" {
		addr = a.cfg.Serve.Addr
	}
	srv := &http.Server{
		Addr: addr,
		Handler: newOpsRouter(func() session.Status {
			st, _ := mgr.Status(id)
			return st
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("ops server listening", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("ops server failed", slog.String("error", err.Error()))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("ops server shutdown", slog.String("error", err.Error()))
		}
	}
}

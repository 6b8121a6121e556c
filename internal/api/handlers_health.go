// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package api

import (
	"net/http"
	"strconv"
	"time"
)

// handleLive is the liveness probe: the process is up and serving.
func (rt *Router) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

type componentHealth struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status        string                     `json:"status"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptimeSeconds"`
	Components    map[string]componentHealth `json:"components"`
}

// handleHealth is the readiness probe. The store is load-bearing for every
// operation, so a failing store means 503; namespaces with failing
// connection tests only degrade the report, the rest of the system keeps
// working.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       rt.version,
		UptimeSeconds: int64(time.Since(rt.started).Seconds()),
		Components:    make(map[string]componentHealth),
	}
	status := http.StatusOK

	if err := rt.store.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Components["store"] = componentHealth{Status: "error", Detail: err.Error()}
		status = http.StatusServiceUnavailable
	} else {
		resp.Components["store"] = componentHealth{Status: "ok"}
	}

	if namespaces, err := rt.creds.List(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Components["namespaces"] = componentHealth{Status: "error", Detail: err.Error()}
		status = http.StatusServiceUnavailable
	} else {
		active, failing := 0, 0
		for i := range namespaces {
			if namespaces[i].Active {
				active++
			}
			if s := namespaces[i].LastConnectionTestSucceeded; s != nil && !*s {
				failing++
			}
		}
		c := componentHealth{
			Status: "ok",
			Detail: strconv.Itoa(active) + " active of " + strconv.Itoa(len(namespaces)),
		}
		if failing > 0 {
			c.Status = "degraded"
			c.Detail += ", " + strconv.Itoa(failing) + " failing connection tests"
			resp.Status = "degraded"
		}
		resp.Components["namespaces"] = c
	}

	resp.Components["replay"] = componentHealth{
		Status: "ok",
		Detail: "queue depth " + strconv.Itoa(rt.executor.QueueDepth()),
	}

	writeJSON(w, r, status, resp)
}

type versionResponse struct {
	Version       string    `json:"version"`
	StartedAt     time.Time `json:"startedAt"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
}

func (rt *Router) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, versionResponse{
		Version:       rt.version,
		StartedAt:     rt.started.UTC(),
		UptimeSeconds: int64(time.Since(rt.started).Seconds()),
	})
}

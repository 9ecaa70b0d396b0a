// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/offlinekit/internal/cachemgr"
)

// GenerationChecker is unhealthy until a generation is active.
type GenerationChecker struct {
	status func() cachemgr.Status
}

// NewGenerationChecker reports on the cache manager's lifecycle.
func NewGenerationChecker(status func() cachemgr.Status) *GenerationChecker {
	return &GenerationChecker{status: status}
}

func (c *GenerationChecker) Name() string { return "generation" }

func (c *GenerationChecker) Check(_ context.Context) CheckResult {
	st := c.status()
	if st.Active == "" {
		return CheckResult{Status: StatusUnhealthy, Message: "no active generation"}
	}
	msg := fmt.Sprintf("%s (%d assets)", st.Active, st.Assets)
	if st.Pending != "" {
		msg += fmt.Sprintf(", %s waiting", st.Pending)
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// PingChecker probes a storage backend.
type PingChecker struct {
	name    string
	ping    func(ctx context.Context) error
	timeout time.Duration
}

// NewPingChecker wraps a HealthCheck-style func. A nil ping is reported as
// healthy, for backends that cannot be probed.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, timeout: 2 * time.Second}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if c.ping == nil {
		return CheckResult{Status: StatusHealthy, Message: "in-process"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// ConnectivityChecker degrades while the origin is unreachable. Serving from
// cache still works, so it never reports unhealthy.
type ConnectivityChecker struct {
	online func() bool
}

// NewConnectivityChecker reports the last probe result.
func NewConnectivityChecker(online func() bool) *ConnectivityChecker {
	return &ConnectivityChecker{online: online}
}

func (c *ConnectivityChecker) Name() string { return "origin" }

func (c *ConnectivityChecker) Check(_ context.Context) CheckResult {
	if c.online() {
		return CheckResult{Status: StatusHealthy, Message: "reachable"}
	}
	return CheckResult{Status: StatusDegraded, Message: "offline, serving from cache"}
}

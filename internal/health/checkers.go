// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DirChecker verifies a directory exists and is writable.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a checker for a writable directory.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(_ context.Context) CheckResult {
	info, err := os.Stat(c.path)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "not a directory", Message: c.path}
	}
	probe := filepath.Join(c.path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: "not writable", Message: c.path}
	}
	_ = os.Remove(probe)
	return CheckResult{Status: StatusHealthy, Message: "writable"}
}

// EndpointChecker verifies an upstream HTTP service answers at all. Optional
// dependencies degrade instead of failing readiness.
type EndpointChecker struct {
	name     string
	url      string
	optional bool
	client   *http.Client
}

// NewEndpointChecker creates a checker for an upstream base URL. An empty
// URL always reports healthy so unconfigured features stay silent.
func NewEndpointChecker(name, url string, optional bool) *EndpointChecker {
	return &EndpointChecker{
		name:     name,
		url:      url,
		optional: optional,
		client:   &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *EndpointChecker) Name() string { return c.name }

func (c *EndpointChecker) Check(ctx context.Context) CheckResult {
	if c.url == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return c.fail(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return c.fail(err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Any HTTP answer counts as reachable; the base URL is not an API
	// endpoint and may well return 404.
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("reachable (%d)", resp.StatusCode)}
}

func (c *EndpointChecker) fail(err error) CheckResult {
	status := StatusUnhealthy
	if c.optional {
		status = StatusDegraded
	}
	return CheckResult{Status: status, Error: err.Error()}
}

package health

import (
	"context"
	"time"

	"github.com/meetbot/platform/internal/circuitbreaker"
	"github.com/meetbot/platform/internal/container"
)

// RedisHealthChecker reports the lock-and-mapping store's reachability,
// consulting its circuit breaker before issuing a fresh Ping.
type RedisHealthChecker struct {
	redis    *circuitbreaker.RedisWrapper
	critical bool
}

func NewRedisHealthChecker(redis *circuitbreaker.RedisWrapper, critical bool) *RedisHealthChecker {
	return &RedisHealthChecker{redis: redis, critical: critical}
}

func (c *RedisHealthChecker) Name() string        { return "redis" }
func (c *RedisHealthChecker) IsCritical() bool     { return c.critical }
func (c *RedisHealthChecker) Timeout() time.Duration { return 3 * time.Second }

func (c *RedisHealthChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "redis", Critical: c.critical, Timestamp: start}

	if c.redis.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Message = "circuit breaker open"
		result.Duration = time.Since(start)
		return result
	}

	if err := c.redis.Ping(ctx).Err(); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "ok"
	}
	result.Duration = time.Since(start)
	return result
}

// DatabaseHealthChecker reports the relational store's reachability.
type DatabaseHealthChecker struct {
	db       *circuitbreaker.DatabaseWrapper
	critical bool
}

func NewDatabaseHealthChecker(db *circuitbreaker.DatabaseWrapper, critical bool) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{db: db, critical: critical}
}

func (c *DatabaseHealthChecker) Name() string        { return "database" }
func (c *DatabaseHealthChecker) IsCritical() bool     { return c.critical }
func (c *DatabaseHealthChecker) Timeout() time.Duration { return 3 * time.Second }

func (c *DatabaseHealthChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "database", Critical: c.critical, Timestamp: start}

	if c.db.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Message = "circuit breaker open"
		result.Duration = time.Since(start)
		return result
	}

	if err := c.db.PingContext(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "ok"
	}
	result.Duration = time.Since(start)
	return result
}

// ContainerSocketHealthChecker reports the Docker control plane's
// reachability over its local socket, used at startup to fail fast per
// the launch contract and exposed on /healthz thereafter.
type ContainerSocketHealthChecker struct {
	driver   *container.Driver
	critical bool
}

func NewContainerSocketHealthChecker(driver *container.Driver, critical bool) *ContainerSocketHealthChecker {
	return &ContainerSocketHealthChecker{driver: driver, critical: critical}
}

func (c *ContainerSocketHealthChecker) Name() string        { return "container-socket" }
func (c *ContainerSocketHealthChecker) IsCritical() bool     { return c.critical }
func (c *ContainerSocketHealthChecker) Timeout() time.Duration { return 5 * time.Second }

func (c *ContainerSocketHealthChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "container-socket", Critical: c.critical, Timestamp: start}

	if err := c.driver.Health(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "ok"
	}
	result.Duration = time.Since(start)
	return result
}

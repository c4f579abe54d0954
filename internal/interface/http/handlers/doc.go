// Package handlers contains reusable HTTP pieces for the analytics API.
//
// # Health Checks
//
// HealthChecker runs named checks in parallel. Critical checks decide
// readiness; optional ones only mark the service degraded:
//
//	checker := handlers.NewHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", db.CheckHealth)
//	checker.AddOptionalCheck("redis", handlers.PingCheck(cache))
//
//	status := checker.Check(ctx)
//	if !status.Ready {
//	    // take the instance out of rotation
//	}
//
// # Middleware
//
// APIKeyAuth, SecurityHeadersMiddleware and NoCacheMiddleware compose with
// Chain:
//
//	h := handlers.Chain(handlers.SecurityHeadersMiddleware, auth.Middleware)(mux)
package handlers

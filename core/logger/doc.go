// Package logger builds the zap logger used across index-checker.
//
// Level accepts any zap level name. Format "json" selects the production
// encoder, "console" the development one.
//
// Request handlers log through WithRayID so that every entry carries the ray
// id set by the rayid middleware:
//
//	l := logger.WithRayID(log, c)
//	l.Error("Run failed", zap.Error(err))
//
// Reconciliation units attach their own fields (model, company, groups,
// unit id) to the logger passed in reconcile.Env.
package logger

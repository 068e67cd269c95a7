package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/chloestaris/iot-sensor/internal/auth"
	"github.com/chloestaris/iot-sensor/internal/audit"
	"github.com/chloestaris/iot-sensor/internal/ratelimit"
	"github.com/chloestaris/iot-sensor/internal/registry"
)

// handleAdmin runs the admin pipeline: rate limit, role gate, dispatch.
// The role check happens before any request parsing side effects so a
// regular principal can never cause a partial mutation.
func (s *Session) handleAdmin(ctx context.Context, raw json.RawMessage) Result {
	if !s.deps.Limiter.Admit(s.clientID()) {
		return errorResult(errRateLimitExceeded)
	}

	if err := auth.Authorize(s.principal, auth.Action{Kind: auth.ActionAdmin}); err != nil {
		return errorResult(errInsufficientPerms)
	}

	var req adminRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResult(errUnrecognizedMessage)
	}

	switch req.Action {
	case actionSystemStats:
		return s.systemStats()
	case actionManageUser:
		return s.manageUser(ctx, req)
	case actionManagePermissions:
		return s.managePermissions(ctx, req)
	case actionConfigureRateLimit:
		return s.configureRateLimit(ctx, req)
	case actionAuditLog:
		return s.auditLog(ctx, req)
	default:
		return errorResult(errUnknownAdminAction)
	}
}

// systemStats reports aggregate counters. Read-only; the snapshot is
// also forwarded to the telemetry recorder when one is wired.
func (s *Session) systemStats() Result {
	connections := 0
	if s.deps.Connections != nil {
		connections = s.deps.Connections()
	}
	registrySize := s.deps.Registry.Size()

	if s.deps.Stats != nil {
		s.deps.Stats(map[string]any{
			"connections":   connections,
			"registry_size": registrySize,
		})
	}

	return okResult(map[string]any{
		"status": "success",
		"stats": map[string]any{
			"connections":   connections,
			"registry_size": registrySize,
			"rate_limits":   s.deps.Limiter.Snapshot(),
		},
	})
}

// auditLog returns the recorded admin trail, newest first. Read-only,
// so it is deliberately not audited itself.
func (s *Session) auditLog(ctx context.Context, req adminRequest) Result {
	if s.deps.Audit == nil {
		return errorResult("audit log unavailable")
	}

	page, err := s.deps.Audit.List(ctx, audit.Filter{
		Action:   req.FilterAction,
		TargetID: req.TargetID,
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
	if err != nil {
		s.log.Error("audit query failed", slog.String("error", err.Error()))
		return errorResult("audit query failed")
	}

	return okResult(map[string]any{
		"status":     "success",
		"audit_logs": page.Logs,
		"total":      page.Total,
	})
}

func (s *Session) manageUser(ctx context.Context, req adminRequest) Result {
	switch req.Operation {
	case "add":
		perms := make([]auth.Permission, 0, len(req.Permissions))
		for _, p := range req.Permissions {
			perms = append(perms, auth.Permission(p))
		}
		if err := s.deps.Registry.AddUser(ctx, req.UserID, perms, req.AllowedSensors); err != nil {
			return s.registryError(err)
		}
		s.recordAudit(ctx, "manage_user.add", req.UserID, map[string]any{
			"permissions":     req.Permissions,
			"allowed_sensors": req.AllowedSensors,
		})
		return ackResult("User added")

	case "remove":
		if err := s.deps.Registry.RemoveUser(ctx, req.UserID); err != nil {
			return s.registryError(err)
		}
		s.recordAudit(ctx, "manage_user.remove", req.UserID, nil)
		return ackResult("User removed")

	default:
		return errorResult(errUnknownUserOperation)
	}
}

func (s *Session) managePermissions(ctx context.Context, req adminRequest) Result {
	perm := auth.Permission(req.Permission)

	switch req.Operation {
	case "grant":
		if err := s.deps.Registry.Grant(ctx, req.TargetUser, perm, req.SensorID); err != nil {
			return s.registryError(err)
		}
		s.recordAudit(ctx, "manage_permissions.grant", req.TargetUser, map[string]any{
			"permission": req.Permission,
			"sensor_id":  req.SensorID,
		})
		return ackResult("Permission granted")

	case "revoke":
		if err := s.deps.Registry.Revoke(ctx, req.TargetUser, perm, req.SensorID); err != nil {
			return s.registryError(err)
		}
		s.recordAudit(ctx, "manage_permissions.revoke", req.TargetUser, map[string]any{
			"permission": req.Permission,
			"sensor_id":  req.SensorID,
		})
		return ackResult("Permission revoked")

	default:
		return errorResult(errUnknownUserOperation)
	}
}

func (s *Session) configureRateLimit(ctx context.Context, req adminRequest) Result {
	limit := ratelimit.Limit{MaxRequests: req.MaxRequests, WindowSeconds: req.WindowSeconds}
	if err := s.deps.Limiter.Configure(ctx, req.ClientID, limit); err != nil {
		if errors.Is(err, ratelimit.ErrInvalidLimit) {
			return errorResult("invalid rate limit")
		}
		s.log.Error("rate limit configuration failed", slog.String("error", err.Error()))
		return errorResult("rate limit configuration failed")
	}
	s.recordAudit(ctx, "configure_rate_limit", req.ClientID, map[string]any{
		"max_requests":   req.MaxRequests,
		"window_seconds": req.WindowSeconds,
	})
	return ackResult("Rate limit configured")
}

// registryError maps registry failures onto wire error strings.
func (s *Session) registryError(err error) Result {
	switch {
	case errors.Is(err, registry.ErrUnknownUser):
		return errorResult("unknown user")
	case errors.Is(err, registry.ErrInvalidPermission):
		return errorResult("invalid permission")
	case errors.Is(err, registry.ErrInvalidUserID):
		return errorResult("invalid user ID")
	default:
		s.log.Error("registry operation failed", slog.String("error", err.Error()))
		return errorResult("registry operation failed")
	}
}

// recordAudit writes the admin trail entry. Best-effort: a failed write
// is logged, not surfaced to the admin client.
func (s *Session) recordAudit(ctx context.Context, action, targetID string, details map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	entry := &audit.AuditLog{
		Action:   action,
		TargetID: targetID,
		Actor:    s.actor(),
		Details:  details,
	}
	if err := s.deps.Audit.Create(ctx, entry); err != nil {
		s.log.Error("audit write failed",
			slog.String("action", action),
			slog.String("error", err.Error()))
	}
}

func (s *Session) actor() string {
	if s.principal.IsAdmin() {
		return "admin"
	}
	return s.principal.UserID
}

// Package auth provides API-key authentication and authorisation for the
// sensor gateway.
//
// It implements a 2-tier role model (regular → admin) with:
//   - Constant-shape API-key lookup against a config-seeded credential store
//   - Additive named permissions for regular principals (absence denies)
//   - Per-sensor scoping via an allowed-sensors set (empty = unrestricted)
//   - Unconditional admin bypass, enforced structurally rather than by
//     permission enumeration, so authorisation logic cannot forget it
//
// Regular principals are resolved through the user registry at
// authentication time, so permission grants made by an admin are visible
// to the next session that authenticates with the affected user's key.
// Once a session is authenticated its principal binding never changes.
package auth

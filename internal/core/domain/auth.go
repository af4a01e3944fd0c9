package domain

import (
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"  // Full access, including webhook subscription management
	RoleWriter Role = "writer" // Token issuance and revocation for owned content
	RoleReader Role = "reader" // GET-only access
)

// APIKey identifies a calling application of the management API. The
// surrounding platform authenticates end users; this core only checks keys.
type APIKey struct {
	ID        string     `json:"id"`
	AppID     string     `json:"app_id"`
	ActorID   string     `json:"actor_id"`
	Name      string     `json:"name"`       // Human-readable label, e.g. "cms-backend-key"
	KeyHash   string     `json:"-"`          // SHA-256 hash of the key (never store raw)
	KeyPrefix string     `json:"key_prefix"` // First 8 chars for identification
	Role      Role       `json:"role"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

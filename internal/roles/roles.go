package roles

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is a moderator's authority level
type Tier int

const (
	Junior Tier = iota + 1
	Senior
	Professional
)

// String returns the tier name
func (t Tier) String() string {
	switch t {
	case Junior:
		return "junior"
	case Senior:
		return "senior"
	case Professional:
		return "professional"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	return t >= Junior && t <= Professional
}

// ParseTier converts a tier name into a Tier
func ParseTier(value string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "junior", "student":
		return Junior, nil
	case "senior":
		return Senior, nil
	case "professional", "oversight":
		return Professional, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", value)
	}
}

// MarshalJSON encodes the tier by name
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a tier name
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Permission is a capability granted to a tier
type Permission string

const (
	PermClaim            Permission = "queue.claim"
	PermReview           Permission = "queue.review"
	PermEscalate         Permission = "queue.escalate"
	PermReleaseAny       Permission = "queue.release_any"
	PermOversightResolve Permission = "oversight.resolve"
	PermRevealOriginal   Permission = "oversight.reveal_original"
	PermViewAll          Permission = "queue.view_all"
)

// Role is the static capability set of a tier
type Role struct {
	Tier              Tier         `json:"tier"`
	MaxRiskLevel      float64      `json:"max_risk_level"`
	RequiresOversight bool         `json:"requires_oversight"`
	Permissions       []Permission `json:"permissions"`
}

// Has reports whether the role grants a permission
func (r Role) Has(p Permission) bool {
	for _, granted := range r.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

// Registry maps tiers to roles
type Registry struct {
	roles map[Tier]Role
}

// NewRegistry creates a registry from role definitions
func NewRegistry(roles ...Role) *Registry {
	r := &Registry{roles: make(map[Tier]Role, len(roles))}
	for _, role := range roles {
		r.roles[role.Tier] = role
	}
	return r
}

// DefaultRegistry returns the junior/senior/professional table
func DefaultRegistry() *Registry {
	review := []Permission{PermClaim, PermReview, PermEscalate}
	return NewRegistry(
		Role{
			Tier:              Junior,
			MaxRiskLevel:      0.6,
			RequiresOversight: true,
			Permissions:       review,
		},
		Role{
			Tier:              Senior,
			MaxRiskLevel:      0.8,
			RequiresOversight: false,
			Permissions:       review,
		},
		Role{
			Tier:              Professional,
			MaxRiskLevel:      1.0,
			RequiresOversight: false,
			Permissions: append(append([]Permission(nil), review...),
				PermReleaseAny, PermOversightResolve, PermRevealOriginal, PermViewAll),
		},
	)
}

// Lookup returns the role of a tier
func (r *Registry) Lookup(t Tier) (Role, bool) {
	role, ok := r.roles[t]
	return role, ok
}

// Can reports whether a tier holds a permission
func (r *Registry) Can(t Tier, p Permission) bool {
	role, ok := r.roles[t]
	return ok && role.Has(p)
}

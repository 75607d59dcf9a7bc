package auth

import (
	"strings"

	"reuse-console/internal/model"
)

// MapRole normalizes the role field of a profile. The backend sends a plain
// string, a list of role names, or an object with a name. Anything it does not
// recognize maps to consumer, never to an elevated role.
func MapRole(raw any) model.Role {
	switch v := raw.(type) {
	case string:
		return roleFromString(v)
	case []string:
		if len(v) > 0 {
			return roleFromString(v[0])
		}
	case []any:
		if len(v) > 0 {
			return MapRole(v[0])
		}
	case map[string]any:
		for _, key := range []string{"name", "role", "roleName", "normalizedName"} {
			if s, ok := v[key].(string); ok {
				return roleFromString(s)
			}
		}
	}
	return model.RoleConsumer
}

// Admin requires an exact match; merchant aliases match by substring.
func roleFromString(s string) model.Role {
	r := strings.ToLower(strings.TrimSpace(s))
	switch {
	case r == "admin" || r == "administrator" || r == "superadmin":
		return model.RoleAdmin
	case strings.Contains(r, "merchant") || strings.Contains(r, "partner") || strings.Contains(r, "dealer"):
		return model.RoleMerchant
	case r == "guest":
		return model.RoleGuest
	}
	return model.RoleConsumer
}

package permissions

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/charlesng35/warden/internal/models"
	apperrors "github.com/charlesng35/warden/pkg/errors"
	"github.com/charlesng35/warden/pkg/metrics"
)

// Wildcards recognised in the requested action/resource set. Asking for
// "manage" accepts any granted action; asking on "all" accepts a grant on
// any resource. Wildcards widen the request, never the stored grant.
const (
	ActionWildcard   = "manage"
	ResourceWildcard = "all"
)

// HasAccess reports whether the user holds every required role. Roles may be
// given as a string, a []string, a models.Role, or a []models.Role; names are
// compared case-insensitively. A nil user never has access. An empty
// requirement is satisfied by any signed-in user.
func HasAccess(roles any, user *models.User) bool {
	if user == nil {
		metrics.AccessChecks.WithLabelValues("role", "deny").Inc()
		return false
	}

	required := normalizeRoles(roles)
	for _, name := range required {
		if !user.HasRole(name) {
			metrics.AccessChecks.WithLabelValues("role", "deny").Inc()
			return false
		}
	}

	metrics.AccessChecks.WithLabelValues("role", "allow").Inc()
	return true
}

// Can reports whether any of the user's roles carries a permission satisfying
// the requested action on the requested resource. Action and resource each
// accept a single value or a set; a request naming "manage" or "all" matches
// any granted action or resource. The resource may be a name or a live
// object; objects resolve to their type name.
func Can(user *models.User, action any, resource any) bool {
	if user == nil {
		metrics.AccessChecks.WithLabelValues("permission", "deny").Inc()
		return false
	}

	wantActions := normalizeActions(action)
	wantResources := normalizeResources(resource)

	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			if grantMatches(perm.Action, wantActions, ActionWildcard) &&
				grantMatches(perm.Resource, wantResources, ResourceWildcard) {
				metrics.AccessChecks.WithLabelValues("permission", "allow").Inc()
				return true
			}
		}
	}

	metrics.AccessChecks.WithLabelValues("permission", "deny").Inc()
	return false
}

// Authorize is the gate form of Can: it returns an AccessDeniedError carrying
// the attempted action and resource when the check fails.
func Authorize(user *models.User, action any, resource any) error {
	if Can(user, action, resource) {
		return nil
	}
	return apperrors.NewAccessDenied(
		strings.Join(normalizeActions(action), ","),
		strings.Join(normalizeResources(resource), ","),
	)
}

// grantMatches reports whether the granted value satisfies the requested set:
// either the set names the wildcard, or it contains the grant itself.
func grantMatches(granted string, wanted []string, wildcard string) bool {
	granted = strings.ToLower(strings.TrimSpace(granted))
	for _, want := range wanted {
		if want == wildcard || want == granted {
			return true
		}
	}
	return false
}

func normalizeActions(action any) []string {
	switch v := action.(type) {
	case []string:
		names := make([]string, 0, len(v))
		for _, name := range v {
			names = append(names, strings.ToLower(strings.TrimSpace(name)))
		}
		return names
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			names = append(names, strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", item))))
		}
		return names
	default:
		return []string{strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", v)))}
	}
}

func normalizeResources(resource any) []string {
	switch v := resource.(type) {
	case []string:
		names := make([]string, 0, len(v))
		for _, name := range v {
			names = append(names, strings.ToLower(strings.TrimSpace(name)))
		}
		return names
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			names = append(names, resolveResource(item))
		}
		return names
	default:
		return []string{resolveResource(resource)}
	}
}

// resolveResource turns a resource argument into a comparable name. Strings
// pass through; anything else resolves to its dereferenced type name, so a
// *models.User instance checks against the "user" resource.
func resolveResource(resource any) string {
	switch v := resource.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	case nil:
		return ""
	}

	t := reflect.TypeOf(resource)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.ToLower(t.Name())
}

func normalizeRoles(roles any) []string {
	switch v := roles.(type) {
	case nil:
		return nil
	case string:
		if name := strings.TrimSpace(v); name != "" {
			return []string{name}
		}
		return nil
	case []string:
		names := make([]string, 0, len(v))
		for _, name := range v {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		return names
	case models.Role:
		return []string{v.Name}
	case *models.Role:
		if v == nil {
			return nil
		}
		return []string{v.Name}
	case []models.Role:
		names := make([]string, 0, len(v))
		for _, role := range v {
			names = append(names, role.Name)
		}
		return names
	default:
		return []string{strings.TrimSpace(fmt.Sprintf("%v", v))}
	}
}

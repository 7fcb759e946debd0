package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Resource names used in role permission documents
const (
	ResourceUsuarios   = "usuarios"
	ResourceCasos      = "casos"
	ResourceDocumentos = "documentos"
	ResourcePersonal   = "personal"
)

// Action names used in role permission documents
const (
	ActionLeer       = "leer"
	ActionCrear      = "crear"
	ActionActualizar = "actualizar"
	ActionEliminar   = "eliminar"
)

// Permissions maps a resource name to the set of actions allowed on it.
type Permissions map[string]map[string]struct{}

// ParsePermissions decodes a role permission document of the form
// {"casos": ["leer", "crear"], ...}. An empty document yields no permissions.
func ParsePermissions(raw []byte) (Permissions, error) {
	perms := make(Permissions)
	if len(raw) == 0 {
		return perms, nil
	}

	var doc map[string][]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}

	for resource, actions := range doc {
		set := make(map[string]struct{}, len(actions))
		for _, action := range actions {
			set[action] = struct{}{}
		}
		perms[resource] = set
	}
	return perms, nil
}

// Allows reports whether action is granted on resource.
func (p Permissions) Allows(resource, action string) bool {
	actions, ok := p[resource]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// Actions returns the sorted actions granted on resource.
func (p Permissions) Actions(resource string) []string {
	actions := make([]string, 0, len(p[resource]))
	for action := range p[resource] {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// MarshalJSON renders the permission set in the same shape it is stored in.
func (p Permissions) MarshalJSON() ([]byte, error) {
	doc := make(map[string][]string, len(p))
	for resource := range p {
		doc[resource] = p.Actions(resource)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON accepts the stored document shape.
func (p *Permissions) UnmarshalJSON(data []byte) error {
	perms, err := ParsePermissions(data)
	if err != nil {
		return err
	}
	*p = perms
	return nil
}

// RequirePermission checks identity's materialized permissions. It never
// touches the network or the database.
func RequirePermission(identity *Identity, resource, action string) error {
	if identity == nil || !identity.Permissions.Allows(resource, action) {
		return ErrForbidden
	}
	return nil
}

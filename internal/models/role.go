package models

import "time"

// Built-in role names seeded by the initial migration.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleAbogado    = "ABOGADO"
	RoleAsistente  = "ASISTENTE"
)

// Role groups a named permission set. RawPermissions holds the JSON document
// stored with the role; it is decoded per request by the authentication gate.
type Role struct {
	ID             int64     `json:"id"`
	Name           string    `json:"nombre"`
	Description    string    `json:"descripcion"`
	RawPermissions []byte    `json:"-"`
	CreatedAt      time.Time `json:"fecha_creacion"`
}

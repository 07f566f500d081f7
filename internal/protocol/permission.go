package protocol

// Permission 드로잉 접근 권한
type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

func (p Permission) String() string {
	return string(p)
}

// CanEdit reports whether local edits may be persisted and broadcast.
func (p Permission) CanEdit() bool {
	return p == PermissionEdit
}

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}

package enums

// UserRole is carried in access tokens and gates admin routes.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"
)

var userRoles = []UserRole{UserRoleCustomer, UserRoleAdmin}

func (r UserRole) String() string { return string(r) }

// IsValid reports whether the role is recognized.
func (r UserRole) IsValid() bool { return member(r, userRoles) }

// ParseUserRole converts a raw string into a UserRole, ignoring case.
func ParseUserRole(value string) (UserRole, error) {
	return parse("user role", value, userRoles)
}

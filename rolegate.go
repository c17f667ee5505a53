package campusauth

// CanAccess reports whether id may use a resource gated on required.
//
// An empty required role admits everyone. Otherwise the identity's role must
// match exactly; admin is not a superset of the other roles.
func CanAccess(id *Identity, required Role) bool {
	if required == "" {
		return true
	}
	if id == nil {
		return false
	}
	return id.Role == required
}

package domain

// Principal is a verified identity bound to a connection for its lifetime.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// IsZero reports whether p carries no identity.
func (p Principal) IsZero() bool {
	return p.ID == ""
}

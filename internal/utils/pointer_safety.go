// Package utils holds small generic helpers shared across the domain
// packages.
package utils

// Value dereferences v, returning the zero value when v is nil. Used when
// applying optional patch fields where nil means "leave unchanged".
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

// Ptr returns a pointer to v, mostly for building patch literals in tests
// and handlers.
func Ptr[T any](v T) *T {
	return &v
}

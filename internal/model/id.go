package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string for use as an entity identifier.
func NewID() string {
	return ulid.Make().String()
}

// ParseID validates s as a ULID and returns its canonical form.
func ParseID(s string) (string, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

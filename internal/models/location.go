package models

import "strings"

// Location is the structured place descriptor shared by tasks and providers.
// Coordinates are optional; categorical fields carry the fallback matching.
type Location struct {
	Locality  string   `json:"locality,omitempty"`
	City      string   `json:"city,omitempty"`
	Region    string   `json:"region,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Verified  bool     `json:"verified,omitempty"`
}

// HasCoordinates reports whether both GPS fields are present.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// SameLocality compares localities case-insensitively, ignoring surrounding space.
func (l Location) SameLocality(other Location) bool {
	return equalPlace(l.Locality, other.Locality)
}

// SameCity compares cities case-insensitively, ignoring surrounding space.
func (l Location) SameCity(other Location) bool {
	return equalPlace(l.City, other.City)
}

// SameRegion compares regions case-insensitively, ignoring surrounding space.
func (l Location) SameRegion(other Location) bool {
	return equalPlace(l.Region, other.Region)
}

func equalPlace(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

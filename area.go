package livestorage

import (
	"fmt"
	"strings"
)

// Area names a partition of the host key-value store.
type Area string

const (
	AreaSync    Area = "sync"
	AreaLocal   Area = "local"
	AreaManaged Area = "managed"
)

var areaOrder = []Area{AreaSync, AreaLocal, AreaManaged}

// Areas returns the fixed area set in load order.
func Areas() []Area {
	out := make([]Area, len(areaOrder))
	copy(out, areaOrder)
	return out
}

// ParseArea converts a string into a known Area.
func ParseArea(value string) (Area, error) {
	switch Area(strings.ToLower(strings.TrimSpace(value))) {
	case AreaSync:
		return AreaSync, nil
	case AreaLocal:
		return AreaLocal, nil
	case AreaManaged:
		return AreaManaged, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownArea, value)
	}
}

// Valid reports whether a is one of the known areas.
func (a Area) Valid() bool {
	switch a {
	case AreaSync, AreaLocal, AreaManaged:
		return true
	default:
		return false
	}
}

// ReadOnly reports whether application code may not write to a.
func (a Area) ReadOnly() bool {
	return a == AreaManaged
}

func (a Area) String() string {
	return string(a)
}

// AreaSelection overrides which areas Load fetches. A nil field falls back to
// the default: sync and local are fetched, managed is not.
type AreaSelection struct {
	Sync    *bool
	Local   *bool
	Managed *bool
}

// Fetch reports whether area should be fetched under this selection.
func (s AreaSelection) Fetch(area Area) bool {
	switch area {
	case AreaSync:
		return boolOr(s.Sync, true)
	case AreaLocal:
		return boolOr(s.Local, true)
	case AreaManaged:
		return boolOr(s.Managed, false)
	default:
		return false
	}
}

// Select builds an AreaSelection with every field set explicitly.
func Select(sync, local, managed bool) AreaSelection {
	return AreaSelection{Sync: &sync, Local: &local, Managed: &managed}
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

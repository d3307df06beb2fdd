package barcodescan

import "strings"

// SymbologySet is a set of symbologies.
type SymbologySet uint16

// NewSymbologySet returns a set holding the given symbologies. Unknown values
// are ignored.
func NewSymbologySet(symbologies ...Symbology) SymbologySet {
	var set SymbologySet
	for _, s := range symbologies {
		set = set.Add(s)
	}
	return set
}

// Add returns a copy of the set with s included.
func (set SymbologySet) Add(s Symbology) SymbologySet {
	if !s.Valid() {
		return set
	}
	return set | 1<<uint(s)
}

// Has reports whether s is in the set.
func (set SymbologySet) Has(s Symbology) bool {
	return s.Valid() && set&(1<<uint(s)) != 0
}

// Len returns the number of symbologies in the set.
func (set SymbologySet) Len() int {
	n := 0
	for s := Symbology(0); s < symbologyCount; s++ {
		if set.Has(s) {
			n++
		}
	}
	return n
}

// Slice returns the members of the set in declaration order.
func (set SymbologySet) Slice() []Symbology {
	var out []Symbology
	for s := Symbology(0); s < symbologyCount; s++ {
		if set.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

func (set SymbologySet) String() string {
	names := make([]string, 0, symbologyCount)
	for _, s := range set.Slice() {
		names = append(names, s.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// baseSymbologies is the set every scan recognizes.
var baseSymbologies = NewSymbologySet(
	SymbologyCode128,
	SymbologyCode39,
	SymbologyCode93,
	SymbologyEAN13,
	SymbologyEAN8,
	SymbologyUPCE,
)

// ComputeSymbologies returns the symbologies a session recognizes: the six
// linear formats, plus QR when useExtendedFormat is set. The result is never
// empty.
func ComputeSymbologies(useExtendedFormat bool) SymbologySet {
	if useExtendedFormat {
		return baseSymbologies.Add(SymbologyQR)
	}
	return baseSymbologies
}

// ABOUTME: Non-fatal integrity findings collected while loading a snapshot
// ABOUTME: Reported as data, never raised

package snapshot

// Diagnostics accumulates non-fatal integrity findings encountered while
// loading a snapshot. None of these abort the load; they turn ad hoc
// progress-reporting counters into a structured report the CLI or UI
// layer can render.
type Diagnostics struct {
	// DanglingReferences counts referent/attribute/element targets that
	// point outside the object table (resolved to Unknown).
	DanglingReferences int
	// MissingTypes counts object records whose type_address was not a key
	// in the type table; each was substituted with a synthetic
	// "unknown-type" record.
	MissingTypes int
	// DuplicateObjectAddresses counts object-table keys seen more than
	// once; the second occurrence won.
	DuplicateObjectAddresses int
	// DuplicateTypeAddresses counts type-table keys seen more than once.
	DuplicateTypeAddresses int
	// UnknownSections counts top-level sections whose tag this
	// implementation did not recognize; their bytes were skipped.
	UnknownSections int
}

func (d *Diagnostics) recordDangling()      { d.DanglingReferences++ }
func (d *Diagnostics) recordMissingType()   { d.MissingTypes++ }
func (d *Diagnostics) recordDupObject()     { d.DuplicateObjectAddresses++ }
func (d *Diagnostics) recordDupType()       { d.DuplicateTypeAddresses++ }
func (d *Diagnostics) recordUnknownSection() { d.UnknownSections++ }

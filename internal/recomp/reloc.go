package recomp

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachableJump means an R_MIPS_26 target lies outside the 256 MiB
	// region of the jump instruction. The function cannot be recompiled.
	ErrUnreachableJump = errors.New("recomp: jump target outside 256 MiB region")
	// ErrUnresolvedSymbol means a reference-symbol reloc did not resolve and
	// validation is enabled.
	ErrUnresolvedSymbol = errors.New("recomp: unresolved reference symbol")
	// ErrBadRelocSection means a reloc names a section that does not exist.
	ErrBadRelocSection = errors.New("recomp: reloc targets invalid section")
	// ErrNoGotBase means a GPREL16 reloc targets a section with no GOT base.
	ErrNoGotBase = errors.New("recomp: gprel16 reloc in section without got address")
)

// RelocValue is the outcome of resolving one relocation.
type RelocValue struct {
	// Target is the fully resolved target address.
	Target uint32
	// Value is the field value to encode at the consumer site, already
	// masked for the relocation kind.
	Value uint32
	// Skip marks an inert R_MIPS_NONE placeholder that must not be applied.
	Skip bool
	// Unresolved marks a tolerated lookup failure (validation disabled);
	// the consumer should emit a placeholder reference.
	Unresolved bool
}

// ResolveReloc resolves one relocation against the context. Reference-symbol
// relocs resolve through the reference symbol table; all others resolve
// against the local section list. Errors are reported per reloc and never
// abort a batch.
func (c *Context) ResolveReloc(r *Reloc) (RelocValue, error) {
	if r.Type == RelocNone {
		return RelocValue{Skip: true}, nil
	}

	var base uint32
	var got OptAddr
	if r.ReferenceSymbol {
		switch r.TargetSection.Kind {
		case SectionNormal:
			if r.TargetSection.Index >= len(c.referenceSections) {
				if c.SkipValidatingReferenceSymbols {
					return RelocValue{Unresolved: true}, nil
				}
				return RelocValue{}, fmt.Errorf("%w: %s", ErrBadRelocSection, r.TargetSection)
			}
			fallthrough
		case SectionAbsolute:
			if r.SymbolIndex >= len(c.referenceSymbols) {
				if c.SkipValidatingReferenceSymbols {
					return RelocValue{Unresolved: true}, nil
				}
				return RelocValue{}, fmt.Errorf("%w: symbol %d", ErrUnresolvedSymbol, r.SymbolIndex)
			}
		case SectionImport:
			if r.SymbolIndex >= len(c.ImportSymbols) {
				if c.SkipValidatingReferenceSymbols {
					return RelocValue{Unresolved: true}, nil
				}
				return RelocValue{}, fmt.Errorf("%w: import %d", ErrUnresolvedSymbol, r.SymbolIndex)
			}
		case SectionEvent:
			if r.SymbolIndex >= len(c.EventSymbols) {
				if c.SkipValidatingReferenceSymbols {
					return RelocValue{Unresolved: true}, nil
				}
				return RelocValue{}, fmt.Errorf("%w: event %d", ErrUnresolvedSymbol, r.SymbolIndex)
			}
		}
		base = c.ReferenceSectionVram(r.TargetSection)
	} else {
		switch r.TargetSection.Kind {
		case SectionAbsolute:
			base = 0
		case SectionNormal:
			if r.TargetSection.Index >= len(c.Sections) {
				return RelocValue{}, fmt.Errorf("%w: %s", ErrBadRelocSection, r.TargetSection)
			}
			sec := &c.Sections[r.TargetSection.Index]
			base = sec.RamAddr
			got = sec.GotRamAddr
		default:
			return RelocValue{}, fmt.Errorf("%w: %s", ErrBadRelocSection, r.TargetSection)
		}
	}

	target := base + r.TargetSectionOffset
	out := RelocValue{Target: target}

	switch r.Type {
	case Reloc32:
		out.Value = target
	case RelocRel32:
		out.Value = target - r.Address
	case Reloc26:
		// Jumps encode a 28-bit offset within the current 256 MiB aligned
		// region; a target outside it cannot be encoded.
		if target>>28 != r.Address>>28 {
			return RelocValue{}, fmt.Errorf("%w: 0x%08x from 0x%08x", ErrUnreachableJump, target, r.Address)
		}
		out.Value = (target >> 2) & 0x3FFFFFF
	case RelocHi16:
		// Rounded so the paired LO16's sign-extended low bits reconstruct
		// the full address.
		out.Value = ((target + 0x8000) >> 16) & 0xFFFF
	case RelocLo16, Reloc16:
		out.Value = target & 0xFFFF
	case RelocGpRel16:
		if !got.Valid {
			return RelocValue{}, fmt.Errorf("%w: address 0x%08x", ErrNoGotBase, r.Address)
		}
		out.Value = (target - got.Addr) & 0xFFFF
	default:
		return RelocValue{Skip: true}, nil
	}
	return out, nil
}

// PairHi16Lo16 reconstructs a full address from a HI16/LO16 field pair: the
// LO16 half is sign-extended before being added, which is why the HI16 half
// carries the +0x8000 rounding.
func PairHi16Lo16(hi, lo uint32) uint32 {
	return (hi << 16) + uint32(int32(int16(lo)))
}

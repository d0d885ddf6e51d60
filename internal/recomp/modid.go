package recomp

// Special section names used by mod declarations.
const (
	PatchSectionName        = ".recomp_patch"
	ForcedPatchSectionName  = ".recomp_force_patch"
	ExportSectionName       = ".recomp_export"
	EventSectionName        = ".recomp_event"
	ImportSectionPrefix     = ".recomp_import."
	CallbackSectionPrefix   = ".recomp_callback."
	HookSectionPrefix       = ".recomp_hook."
	HookReturnSectionPrefix = ".recomp_hook_return."
)

// IsManualPatchSymbol reports whether vram falls in the window reserved for
// manually specified patch symbols. Zero-sized symbols between 0x8F000000
// and 0x90000000 are manual symbols for use with patches.
func IsManualPatchSymbol(vram uint32) bool {
	return vram >= 0x8F000000 && vram < 0x90000000
}

// Locale-independent ASCII-only isalpha.
func isAlphaASCII(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Locale-independent ASCII-only isalnum.
func isAlnumASCII(c byte) bool {
	return isAlphaASCII(c) || (c >= '0' && c <= '9')
}

// ValidateModID reports whether s is an acceptable mod identifier. The
// reserved names "." and "*" are always accepted; everything else must look
// like a C identifier.
func ValidateModID(s string) bool {
	if len(s) == 0 {
		return false
	}
	if s == DependencySelf || s == DependencyBaseRecomp {
		return true
	}
	if !isAlphaASCII(s[0]) && s[0] != '_' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isAlnumASCII(s[i]) && s[i] != '_' {
			return false
		}
	}
	return true
}

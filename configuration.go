package barcodescan

import "image/color"

// Configuration configures one scan attempt. The capture session keeps its
// own copy once configured, so later changes by the caller have no effect.
type Configuration struct {
	// ShowHelperOverlay draws a framing rectangle in the middle of the preview.
	ShowHelperOverlay bool

	// HelperColor is the border colour of the helper overlay.
	HelperColor color.RGBA

	// CancelLabel is the title of the close control when no icon is set.
	CancelLabel string

	// CloseIcon names an image to use for the close control instead of the
	// label. Empty means no icon.
	CloseIcon string

	// UseExtendedFormat enables QR in addition to the linear symbologies.
	UseExtendedFormat bool

	// Symbologies is the enabled set. When empty it is computed from
	// UseExtendedFormat during configuration.
	Symbologies SymbologySet
}

// DefaultConfiguration returns the configuration used when the caller sets
// nothing: white helper overlay, "Cancel" label, linear symbologies only.
func DefaultConfiguration() Configuration {
	return Configuration{
		ShowHelperOverlay: true,
		HelperColor:       color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
		CancelLabel:       "Cancel",
	}
}

// EffectiveSymbologies returns Symbologies, or the computed set when it is
// empty.
func (c Configuration) EffectiveSymbologies() SymbologySet {
	if c.Symbologies.Len() > 0 {
		return c.Symbologies
	}
	return ComputeSymbologies(c.UseExtendedFormat)
}

package view

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	barcodescan "github.com/ericlevine/barcodescan"
)

// CloseControl selects how the host renders the control that cancels a scan.
type CloseControl int

const (
	// CloseLabel is a text button titled with the cancel label.
	CloseLabel CloseControl = iota
	// CloseIcon is an image button using the configured icon.
	CloseIcon
)

func (c CloseControl) String() string {
	if c == CloseIcon {
		return "icon"
	}
	return "label"
}

// Size is the frame size of the control in points.
func (c CloseControl) Size() Size {
	if c == CloseIcon {
		return Size{Width: 44, Height: 44}
	}
	return Size{Width: 100, Height: 44}
}

// CloseControlFor returns CloseIcon when the configuration names an icon and
// CloseLabel otherwise.
func CloseControlFor(cfg barcodescan.Configuration) CloseControl {
	if cfg.CloseIcon != "" {
		return CloseIcon
	}
	return CloseLabel
}

// CloseButtonFrame places a close control of the given size centered
// horizontally near the bottom of bounds: icons sit 40 points above the
// bottom edge, labels straddle it.
func CloseButtonFrame(control CloseControl, bounds, size Size) Rect {
	x := bounds.Width/2 - size.Width/2
	y := bounds.Height - size.Height/2
	if control == CloseIcon {
		y = bounds.Height - (size.Height/2 + 40)
	}
	return Rect{X: x, Y: y, Width: size.Width, Height: size.Height}
}

const cancelKey = "Cancel"

var supportedLocales = []language.Tag{
	language.English,
	language.French,
	language.German,
	language.Spanish,
	language.Italian,
	language.Portuguese,
}

var localeMatcher = language.NewMatcher(supportedLocales)

func init() {
	_ = message.SetString(language.English, cancelKey, "Cancel")
	_ = message.SetString(language.French, cancelKey, "Annuler")
	_ = message.SetString(language.German, cancelKey, "Abbrechen")
	_ = message.SetString(language.Spanish, cancelKey, "Cancelar")
	_ = message.SetString(language.Italian, cancelKey, "Annulla")
	_ = message.SetString(language.Portuguese, cancelKey, "Cancelar")
}

// DefaultCancelLabel returns the cancel label for the closest supported
// locale, falling back to English.
func DefaultCancelLabel(tag language.Tag) string {
	_, index, _ := localeMatcher.Match(tag)
	return message.NewPrinter(supportedLocales[index]).Sprintf(cancelKey)
}

// CancelLabel returns the configured label, or the localized default when the
// configuration leaves it empty.
func CancelLabel(cfg barcodescan.Configuration, tag language.Tag) string {
	if cfg.CancelLabel != "" {
		return cfg.CancelLabel
	}
	return DefaultCancelLabel(tag)
}

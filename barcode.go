// Package barcodescan runs single-shot barcode scan sessions against a camera:
// configure the capture pipeline, stream frames until the first code is
// decoded, deliver that code exactly once and tear the session down.
package barcodescan

import (
	"fmt"
	"strings"
)

// Symbology represents a barcode encoding standard.
type Symbology int

const (
	SymbologyCode128 Symbology = iota
	SymbologyCode39
	SymbologyCode93
	SymbologyEAN13
	SymbologyEAN8
	SymbologyUPCE
	SymbologyQR

	symbologyCount
)

// String returns the short name of the symbology.
func (s Symbology) String() string {
	switch s {
	case SymbologyCode128:
		return "Code128"
	case SymbologyCode39:
		return "Code39"
	case SymbologyCode93:
		return "Code93"
	case SymbologyEAN13:
		return "EAN13"
	case SymbologyEAN8:
		return "EAN8"
	case SymbologyUPCE:
		return "UPCE"
	case SymbologyQR:
		return "QR"
	default:
		return "UNKNOWN"
	}
}

// TypeIdentifier returns the reverse-DNS metadata type reported for codes of
// this symbology, e.g. "org.gs1.EAN-13".
func (s Symbology) TypeIdentifier() string {
	switch s {
	case SymbologyCode128:
		return "org.iso.Code128"
	case SymbologyCode39:
		return "org.iso.Code39"
	case SymbologyCode93:
		return "com.intermec.Code93"
	case SymbologyEAN13:
		return "org.gs1.EAN-13"
	case SymbologyEAN8:
		return "org.gs1.EAN-8"
	case SymbologyUPCE:
		return "org.gs1.UPC-E"
	case SymbologyQR:
		return "org.iso.QRCode"
	default:
		return ""
	}
}

// Valid reports whether s is one of the known symbologies.
func (s Symbology) Valid() bool {
	return s >= 0 && s < symbologyCount
}

// ParseSymbology resolves a short name ("EAN13"), a ZXing style name
// ("EAN_13") or a type identifier ("org.gs1.EAN-13") to a Symbology.
func ParseSymbology(name string) (Symbology, error) {
	norm := strings.ToUpper(strings.NewReplacer("_", "", "-", "", " ", "").Replace(name))
	for s := Symbology(0); s < symbologyCount; s++ {
		if norm == strings.ToUpper(s.String()) || strings.EqualFold(name, s.TypeIdentifier()) {
			return s, nil
		}
	}
	if norm == "QRCODE" {
		return SymbologyQR, nil
	}
	return 0, fmt.Errorf("unknown symbology %q", name)
}

// AllSymbologies returns every supported symbology in declaration order.
func AllSymbologies() []Symbology {
	out := make([]Symbology, 0, symbologyCount)
	for s := Symbology(0); s < symbologyCount; s++ {
		out = append(out, s)
	}
	return out
}

// Result is a decoded payload together with its symbology. It is created once
// per scan attempt and never modified.
type Result struct {
	Payload   string
	Symbology Symbology
}

// String formats the result the way the CLI prints it.
func (r Result) String() string {
	return fmt.Sprintf("[%s] %s", r.Symbology, r.Payload)
}

// ResultSink receives the outcome of a scan attempt. Deliver is invoked at most
// once per attempt, from the capture delivery goroutine.
type ResultSink interface {
	Deliver(result Result)
}

// SinkFunc adapts a plain function to a ResultSink.
type SinkFunc func(Result)

// Deliver calls f(result).
func (f SinkFunc) Deliver(result Result) {
	f(result)
}

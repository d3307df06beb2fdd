// Package metadata implements the metadata output stage of a capture session:
// each frame is analyzed for machine-readable codes of the enabled
// symbologies and reported as a list of objects.
package metadata

import (
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/logger"
)

// Object is one machine-readable code found in a frame.
type Object struct {
	Payload   string
	Symbology barcodescan.Symbology
	// Corners holds the detector's result points in frame pixels. Linear
	// codes report the two ends of the scanned row.
	Corners []image.Point
}

// readerFactory creates a gozxing reader for one symbology.
type readerFactory func() gozxing.Reader

var readerFactories = map[barcodescan.Symbology]readerFactory{
	barcodescan.SymbologyCode128: func() gozxing.Reader { return oned.NewCode128Reader() },
	barcodescan.SymbologyCode39:  func() gozxing.Reader { return oned.NewCode39Reader() },
	barcodescan.SymbologyCode93:  func() gozxing.Reader { return oned.NewCode93Reader() },
	barcodescan.SymbologyEAN13:   func() gozxing.Reader { return oned.NewEAN13Reader() },
	barcodescan.SymbologyEAN8:    func() gozxing.Reader { return oned.NewEAN8Reader() },
	barcodescan.SymbologyUPCE:    func() gozxing.Reader { return oned.NewUPCEReader() },
	barcodescan.SymbologyQR:      func() gozxing.Reader { return qrcode.NewQRCodeReader() },
}

// Supported reports whether the output can recognize s.
func Supported(s barcodescan.Symbology) bool {
	_, ok := readerFactories[s]
	return ok
}

type symbologyReader struct {
	symbology barcodescan.Symbology
	reader    gozxing.Reader
}

// Output analyzes frames for the enabled symbologies. Analyze is called from
// a single delivery goroutine; SetSymbologies may be called from any
// goroutine.
type Output struct {
	tryHarder    bool
	alsoInverted bool

	mu          sync.Mutex
	symbologies barcodescan.SymbologySet
	readers     []symbologyReader
}

// Option configures an Output.
type Option func(*Output)

// WithTryHarder spends more time per frame looking for codes.
func WithTryHarder(tryHarder bool) Option {
	return func(o *Output) { o.tryHarder = tryHarder }
}

// WithAlsoInverted retries frames with inverted luminance when nothing was
// found, for light-on-dark codes.
func WithAlsoInverted(inverted bool) Option {
	return func(o *Output) { o.alsoInverted = inverted }
}

// NewOutput returns an output with no symbologies enabled. Call
// SetSymbologies before analyzing frames.
func NewOutput(opts ...Option) *Output {
	o := &Output{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetSymbologies replaces the enabled set. Symbologies without a reader are
// dropped; an empty result is rejected and leaves the previous set in place.
func (o *Output) SetSymbologies(set barcodescan.SymbologySet) error {
	var readers []symbologyReader
	var enabled barcodescan.SymbologySet
	for _, s := range set.Slice() {
		factory, ok := readerFactories[s]
		if !ok {
			continue
		}
		readers = append(readers, symbologyReader{symbology: s, reader: factory()})
		enabled = enabled.Add(s)
	}
	if len(readers) == 0 {
		return fmt.Errorf("set %s: %w", set, barcodescan.ErrEmptySymbologies)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.symbologies = enabled
	o.readers = readers
	return nil
}

// Symbologies returns the enabled set.
func (o *Output) Symbologies() barcodescan.SymbologySet {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.symbologies
}

// Analyze returns every code of an enabled symbology found in frame, ordered
// by position from the top left. A frame may yield several objects.
func (o *Output) Analyze(frame image.Image) ([]Object, error) {
	o.mu.Lock()
	readers := o.readers
	o.mu.Unlock()
	if len(readers) == 0 {
		return nil, barcodescan.ErrEmptySymbologies
	}

	gray := Grayscale(frame)
	objects, err := o.analyze(gray, readers)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 && o.alsoInverted {
		return o.analyze(Invert(gray), readers)
	}
	return objects, nil
}

func (o *Output) analyze(gray *image.Gray, readers []symbologyReader) ([]Object, error) {
	source := gozxing.NewLuminanceSourceFromImage(gray)

	// Readers that fail on the global threshold get a second pass with the
	// local one.
	binarizers := []gozxing.Binarizer{
		gozxing.NewGlobalHistgramBinarizer(source),
		gozxing.NewHybridBinarizer(source),
	}

	hints := map[gozxing.DecodeHintType]interface{}{}
	if o.tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	var objects []Object
	found := make([]bool, len(readers))
	seen := map[string]bool{}
	for _, binarizer := range binarizers {
		bitmap, err := gozxing.NewBinaryBitmap(binarizer)
		if err != nil {
			return nil, fmt.Errorf("binarize frame: %w", err)
		}
		for i, r := range readers {
			if found[i] {
				continue
			}
			result, err := tryDecode(r.reader, bitmap, hints)
			r.reader.Reset()
			if err != nil {
				continue
			}
			found[i] = true
			key := r.symbology.String() + ":" + result.GetText()
			if seen[key] {
				continue
			}
			seen[key] = true
			objects = append(objects, Object{
				Payload:   result.GetText(),
				Symbology: r.symbology,
				Corners:   corners(result.GetResultPoints()),
			})
		}
	}

	sortByPosition(objects)
	return objects, nil
}

// sortByPosition orders objects top to bottom, then left to right, by the
// top-left of their corners. Objects without corners keep their order at the
// end.
func sortByPosition(objects []Object) {
	sort.SliceStable(objects, func(i, j int) bool {
		pi, oki := topLeft(objects[i].Corners)
		pj, okj := topLeft(objects[j].Corners)
		switch {
		case !oki || !okj:
			return oki && !okj
		case pi.Y != pj.Y:
			return pi.Y < pj.Y
		default:
			return pi.X < pj.X
		}
	})
}

func topLeft(points []image.Point) (image.Point, bool) {
	if len(points) == 0 {
		return image.Point{}, false
	}
	tl := points[0]
	for _, p := range points[1:] {
		tl.X = min(tl.X, p.X)
		tl.Y = min(tl.Y, p.Y)
	}
	return tl, true
}

// tryDecode calls reader.Decode but recovers from panics that decoders may
// raise on malformed input, converting them to errors.
func tryDecode(reader gozxing.Reader, bitmap *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) (result *gozxing.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Debug("decoder panic recovered",
				slog.String("component", "metadata_output"),
				slog.Any("panic", r))
			result = nil
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return reader.Decode(bitmap, hints)
}

func corners(points []gozxing.ResultPoint) []image.Point {
	if len(points) == 0 {
		return nil
	}
	out := make([]image.Point, 0, len(points))
	for _, p := range points {
		if p == nil {
			continue
		}
		out = append(out, image.Pt(int(p.GetX()+0.5), int(p.GetY()+0.5)))
	}
	return out
}

// Package annotation reads Pascal VOC annotation files and maps their region
// labels onto the four fitness categories.
//
// Parsing is tolerant at the object level: an object with a missing or
// non-numeric coordinate is skipped with a warning and the remaining objects
// are still returned. Only a missing file or an undecodable XML container is
// reported as an error.
package annotation

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ironsheep/fitset/internal/geometry"
	"github.com/ironsheep/fitset/internal/logging"
)

var (
	// ErrSourceNotFound reports a missing annotation file or directory.
	ErrSourceNotFound = errors.New("annotation source not found")

	// ErrMalformedSource reports an annotation container that cannot be decoded.
	ErrMalformedSource = errors.New("malformed annotation source")
)

// Object is one labeled region as written in the file. Name is kept verbatim
// so callers can decide what to do with labels outside the category set.
type Object struct {
	Name string       `json:"name"`
	Box  geometry.Box `json:"box"`
}

// Annotation is a labeled region whose label resolved to a known category.
type Annotation struct {
	Category Category     `json:"category"`
	Box      geometry.Box `json:"box"`
}

// Document is one parsed annotation file.
type Document struct {
	// Source identifies where the document was read from (usually a path).
	Source string `json:"source"`

	// Filename is the image file name recorded in the annotation.
	Filename string `json:"filename"`

	// Width and Height are the declared image dimensions. They are zero when
	// the size element is missing or not numeric.
	Width  int `json:"width"`
	Height int `json:"height"`

	Objects []Object `json:"objects"`
}

// vocAnnotation mirrors the VOC layout. Coordinates stay as strings so a bad
// value only invalidates its own object.
type vocAnnotation struct {
	XMLName  xml.Name `xml:"annotation"`
	Filename string   `xml:"filename"`
	Size     struct {
		Width  string `xml:"width"`
		Height string `xml:"height"`
	} `xml:"size"`
	Objects []vocObject `xml:"object"`
}

type vocObject struct {
	Name   *string `xml:"name"`
	BndBox *struct {
		XMin *string `xml:"xmin"`
		YMin *string `xml:"ymin"`
		XMax *string `xml:"xmax"`
		YMax *string `xml:"ymax"`
	} `xml:"bndbox"`
}

// ParseFile opens and parses a VOC annotation file.
func ParseFile(path string, logger *slog.Logger) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("failed to open annotation %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f, path, logger)
}

// Parse decodes a VOC annotation from r. source is used in log messages and
// recorded on the returned Document.
func Parse(r io.Reader, source string, logger *slog.Logger) (*Document, error) {
	logger = logging.OrDiscard(logger)

	var raw vocAnnotation
	if err := xml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSource, source, err)
	}

	doc := &Document{
		Source:   source,
		Filename: strings.TrimSpace(raw.Filename),
		Width:    parseDimension(raw.Size.Width),
		Height:   parseDimension(raw.Size.Height),
		Objects:  make([]Object, 0, len(raw.Objects)),
	}

	for i, obj := range raw.Objects {
		parsed, err := obj.toObject()
		if err != nil {
			logger.Warn("skipping annotation object",
				"source", source,
				"object", i,
				"error", err)
			continue
		}
		logger.Debug("parsed annotation object",
			"source", source,
			"object", i,
			"name", parsed.Name,
			"box", parsed.Box.String())
		doc.Objects = append(doc.Objects, parsed)
	}

	return doc, nil
}

func (o vocObject) toObject() (Object, error) {
	if o.Name == nil {
		return Object{}, errors.New("missing name")
	}
	if o.BndBox == nil {
		return Object{}, errors.New("missing bndbox")
	}

	coords := [4]struct {
		field string
		value *string
	}{
		{"xmin", o.BndBox.XMin},
		{"ymin", o.BndBox.YMin},
		{"xmax", o.BndBox.XMax},
		{"ymax", o.BndBox.YMax},
	}

	var vals [4]int
	for i, c := range coords {
		if c.value == nil {
			return Object{}, fmt.Errorf("missing %s", c.field)
		}
		v, err := parseCoordinate(*c.value)
		if err != nil {
			return Object{}, fmt.Errorf("%s: %w", c.field, err)
		}
		vals[i] = v
	}

	return Object{
		Name: strings.TrimSpace(*o.Name),
		Box:  geometry.Box{XMin: vals[0], YMin: vals[1], XMax: vals[2], YMax: vals[3]},
	}, nil
}

// parseCoordinate accepts integer or decimal text and truncates toward zero.
func parseCoordinate(s string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric value %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return int(f), nil
}

func parseDimension(s string) int {
	v, err := parseCoordinate(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// Annotations resolves object names to categories. Objects whose name is not
// one of the four category labels are dropped with a warning.
func (d *Document) Annotations(logger *slog.Logger) []Annotation {
	logger = logging.OrDiscard(logger)

	out := make([]Annotation, 0, len(d.Objects))
	for _, obj := range d.Objects {
		c, ok := ParseCategory(obj.Name)
		if !ok {
			logger.Warn("dropping object with unknown category",
				"source", d.Source,
				"name", obj.Name,
				"box", obj.Box.String())
			continue
		}
		out = append(out, Annotation{Category: c, Box: obj.Box})
	}
	return out
}

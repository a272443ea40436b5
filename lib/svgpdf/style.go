package svgpdf

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Matrix is an affine transform in svg order: x' = A*x + C*y + E,
// y' = B*x + D*y + F.
type Matrix = rasterx.Matrix2D

var Identity = rasterx.Identity

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// parseTransform parses the value of a transform attribute.
func parseTransform(s string) (Matrix, error) {
	m := Identity
	for _, t := range strings.Split(s, ")") {
		t = strings.Trim(t, " \t\n\r,")
		if t == "" {
			continue
		}
		name, rawArgs, ok := strings.Cut(t, "(")
		if !ok {
			return Identity, fmt.Errorf("bad transform %q", s)
		}
		args, err := parseNumberList(rawArgs)
		if err != nil {
			return Identity, fmt.Errorf("bad transform %q: %w", s, err)
		}
		name = strings.TrimSpace(name)
		switch {
		case name == "matrix" && len(args) == 6:
			m = m.Mult(Matrix{A: args[0], B: args[1], C: args[2], D: args[3], E: args[4], F: args[5]})
		case name == "translate" && len(args) == 1:
			m = m.Translate(args[0], 0)
		case name == "translate" && len(args) == 2:
			m = m.Translate(args[0], args[1])
		case name == "scale" && len(args) == 1:
			m = m.Scale(args[0], args[0])
		case name == "scale" && len(args) == 2:
			m = m.Scale(args[0], args[1])
		case name == "rotate" && len(args) == 1:
			m = m.Rotate(radians(args[0]))
		case name == "rotate" && len(args) == 3:
			m = m.Translate(args[1], args[2]).Rotate(radians(args[0])).Translate(-args[1], -args[2])
		case name == "skewX" && len(args) == 1:
			m = m.SkewX(radians(args[0]))
		case name == "skewY" && len(args) == 1:
			m = m.SkewY(radians(args[0]))
		default:
			return Identity, fmt.Errorf("bad transform %q: %s with %d arguments", s, name, len(args))
		}
	}
	if strings.Count(s, "(") != strings.Count(s, ")") {
		return Identity, fmt.Errorf("bad transform %q", s)
	}
	return m, nil
}

func isListSeparator(r rune) bool {
	return r == ',' || unicode.IsSpace(r)
}

// parseNumberList parses a comma or space separated list like a viewBox.
func parseNumberList(s string) ([]float64, error) {
	var out []float64
	for _, field := range strings.FieldsFunc(s, isListSeparator) {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// parseLength parses a length like "595.3", "12px" or "10pt" into points.
// Percentages and font relative units are not supported.
func parseLength(s string) (float64, error) {
	s = strings.TrimSpace(s)
	unit := 1.0
	for _, suffix := range []struct {
		name  string
		scale float64
	}{
		{"px", 1},
		{"pt", 1},
		{"mm", 72 / 25.4},
		{"cm", 72 / 2.54},
		{"in", 72},
	} {
		if strings.HasSuffix(s, suffix.name) {
			s = strings.TrimSuffix(s, suffix.name)
			unit = suffix.scale
			break
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return v * unit, nil
}

// Color is an rgb color, the zero value is black.
type Color struct {
	R, G, B int
}

// Paint is the fill or stroke of a shape.
type Paint struct {
	None  bool
	Color Color
}

// parsePaint returns ok=false for paints that can't be represented (ie.
// gradients), the caller keeps the inherited paint in that case.
func parsePaint(s string) (Paint, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "none" || s == "transparent":
		return Paint{None: true}, true
	case s == "currentcolor":
		return Paint{}, true
	case s == "" || strings.HasPrefix(s, "url"):
		return Paint{}, false
	}
	c, err := oksvg.ParseSVGColor(s)
	if err != nil || c == nil {
		return Paint{}, false
	}
	rgb := color.NRGBAModel.Convert(c).(color.NRGBA)
	return Paint{Color: Color{int(rgb.R), int(rgb.G), int(rgb.B)}}, true
}

// Style holds the presentation attributes after inheritance.
type Style struct {
	Fill          Paint
	Stroke        Paint
	StrokeWidth   float64
	Opacity       float64
	FillOpacity   float64
	StrokeOpacity float64
	FontSize      float64
	Bold          bool
	EvenOdd       bool
	LineCap       string
	LineJoin      string
	Display       bool
	Visible       bool
}

var defaultStyle = Style{
	Fill:          Paint{},
	Stroke:        Paint{None: true},
	StrokeWidth:   1,
	Opacity:       1,
	FillOpacity:   1,
	StrokeOpacity: 1,
	FontSize:      16,
	LineCap:       "butt",
	LineJoin:      "miter",
	Display:       true,
	Visible:       true,
}

// splitStyle parses a css declaration list like "fill:#fff;stroke:none".
func splitStyle(s string) map[string]string {
	out := map[string]string{}
	for _, decl := range strings.Split(s, ";") {
		key, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

func parseOpacity(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	pct := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, false
	}
	if pct {
		v /= 100
	}
	return math.Max(0, math.Min(1, v)), true
}

// inherit applies the presentation attributes in props on top of parent.
// Group opacity is approximated by multiplying it into the children.
func inherit(parent Style, props map[string]string) Style {
	s := parent
	for key, value := range props {
		switch key {
		case "fill":
			if p, ok := parsePaint(value); ok {
				s.Fill = p
			}
		case "stroke":
			if p, ok := parsePaint(value); ok {
				s.Stroke = p
			}
		case "stroke-width":
			if w, err := parseLength(value); err == nil {
				s.StrokeWidth = w
			}
		case "opacity":
			if o, ok := parseOpacity(value); ok {
				s.Opacity = parent.Opacity * o
			}
		case "fill-opacity":
			if o, ok := parseOpacity(value); ok {
				s.FillOpacity = o
			}
		case "stroke-opacity":
			if o, ok := parseOpacity(value); ok {
				s.StrokeOpacity = o
			}
		case "font-size":
			if size, err := parseLength(value); err == nil {
				s.FontSize = size
			}
		case "font-weight":
			s.Bold = value == "bold" || value == "bolder" || value >= "600" && len(value) == 3
		case "fill-rule":
			s.EvenOdd = value == "evenodd"
		case "stroke-linecap":
			if value == "butt" || value == "round" || value == "square" {
				s.LineCap = value
			}
		case "stroke-linejoin":
			if value == "miter" || value == "round" || value == "bevel" {
				s.LineJoin = value
			}
		case "display":
			s.Display = value != "none"
		case "visibility":
			s.Visible = value != "hidden" && value != "collapse"
		}
	}
	return s
}

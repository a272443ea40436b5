// Package svgpdf renders the subset of svg used by scanned book pages into
// single page pdf documents.
package svgpdf

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/antchfx/xmlquery"
)

var ErrInvalidSvg = errors.New("invalid svg document")

type Kind int

const (
	KindGroup Kind = iota
	KindPath
	KindImage
	KindText
)

// Image is a raster image decoded from a data uri.
type Image struct {
	// Type is the fpdf image type: PNG, JPG or GIF.
	Type string
	Data []byte
	X, Y float64
	W, H float64
}

// TextRun is a piece of text with its own style. HasX and HasY are false
// when the run continues where the previous one ended.
type TextRun struct {
	Text  string
	X, Y  float64
	HasX  bool
	HasY  bool
	Style Style
}

// Element is a node of the scene tree. Transform is relative to the parent.
type Element struct {
	Kind      Kind
	Transform Matrix
	Style     Style

	Children []*Element
	Path     []Segment
	Image    *Image
	Runs     []TextRun
}

// Scene is a parsed svg document, Width and Height are in points.
type Scene struct {
	Width  float64
	Height float64
	Root   *Element

	// Warnings lists content that was dropped while parsing.
	Warnings []string
}

var presentationAttributes = []string{
	"fill",
	"fill-opacity",
	"fill-rule",
	"stroke",
	"stroke-width",
	"stroke-opacity",
	"stroke-linecap",
	"stroke-linejoin",
	"opacity",
	"font-size",
	"font-weight",
	"display",
	"visibility",
}

// elements that never render directly
var skippedElements = map[string]bool{
	"defs":           true,
	"clipPath":       true,
	"mask":           true,
	"symbol":         true,
	"style":          true,
	"script":         true,
	"title":          true,
	"desc":           true,
	"metadata":       true,
	"use":            true,
	"pattern":        true,
	"marker":         true,
	"filter":         true,
	"linearGradient": true,
	"radialGradient": true,
	"foreignObject":  true,
}

func attr(n *xmlquery.Node, local string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

type parser struct {
	warnings []string
}

func (p *parser) warn(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func (p *parser) length(n *xmlquery.Node, name string) (float64, error) {
	raw, ok := attr(n, name)
	if !ok {
		return 0, nil
	}
	v, err := parseLength(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: attribute %s of <%s>: %w", ErrInvalidSvg, name, n.Data, err)
	}
	return v, nil
}

func (p *parser) lengths(n *xmlquery.Node, names ...string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		v, err := p.length(n, name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Parse reads an svg document into a scene.
func Parse(markup string) (*Scene, error) {
	doc, err := xmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSvg, err)
	}

	var root *xmlquery.Node
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			root = n
			break
		}
	}
	if root == nil || root.Data != "svg" {
		return nil, fmt.Errorf("%w: root element is not <svg>", ErrInvalidSvg)
	}

	p := &parser{}
	scene := &Scene{}
	viewport, err := p.viewport(root, scene)
	if err != nil {
		return nil, err
	}

	el, err := p.group(root, defaultStyle)
	if err != nil {
		return nil, err
	}
	el.Transform = viewport
	scene.Root = el
	scene.Warnings = p.warnings
	return scene, nil
}

// viewport sets the page size and returns the transform from the viewBox
// into page space.
func (p *parser) viewport(root *xmlquery.Node, scene *Scene) (Matrix, error) {
	var vb []float64
	if raw, ok := attr(root, "viewBox"); ok {
		var err error
		vb, err = parseNumberList(raw)
		if err != nil || len(vb) != 4 {
			return Identity, fmt.Errorf("%w: bad viewBox %q", ErrInvalidSvg, raw)
		}
		if vb[2] <= 0 || vb[3] <= 0 {
			vb = nil
		}
	}

	size := func(name string, fallback int) float64 {
		if raw, ok := attr(root, name); ok && !strings.HasSuffix(strings.TrimSpace(raw), "%") {
			if v, err := parseLength(raw); err == nil && v > 0 {
				return v
			}
		}
		if vb != nil {
			return vb[fallback]
		}
		return 0
	}
	scene.Width = size("width", 2)
	scene.Height = size("height", 3)
	if scene.Width <= 0 || scene.Height <= 0 {
		return Identity, fmt.Errorf("%w: document has no size", ErrInvalidSvg)
	}
	if vb == nil {
		return Identity, nil
	}

	sx, sy := scene.Width/vb[2], scene.Height/vb[3]
	align, _ := attr(root, "preserveAspectRatio")
	if strings.TrimSpace(align) == "none" {
		return Matrix{A: sx, D: sy, E: -vb[0] * sx, F: -vb[1] * sy}, nil
	}
	// xMidYMid meet
	s := math.Min(sx, sy)
	tx := (scene.Width-vb[2]*s)/2 - vb[0]*s
	ty := (scene.Height-vb[3]*s)/2 - vb[1]*s
	return Matrix{A: s, D: s, E: tx, F: ty}, nil
}

// common reads the transform and style shared by all elements.
func (p *parser) common(n *xmlquery.Node, parent Style) (Matrix, Style, error) {
	m := Identity
	if raw, ok := attr(n, "transform"); ok {
		var err error
		m, err = parseTransform(raw)
		if err != nil {
			return Identity, parent, fmt.Errorf("%w: <%s>: %w", ErrInvalidSvg, n.Data, err)
		}
	}

	props := map[string]string{}
	for _, name := range presentationAttributes {
		if v, ok := attr(n, name); ok {
			props[name] = v
		}
	}
	if raw, ok := attr(n, "style"); ok {
		for k, v := range splitStyle(raw) {
			props[k] = v
		}
	}
	return m, inherit(parent, props), nil
}

func (p *parser) group(n *xmlquery.Node, style Style) (*Element, error) {
	el := &Element{Kind: KindGroup, Transform: Identity, Style: style}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode || skippedElements[c.Data] {
			continue
		}
		child, err := p.element(c, style)
		if err != nil {
			return nil, err
		}
		if child != nil {
			el.Children = append(el.Children, child)
		}
	}
	return el, nil
}

func (p *parser) element(n *xmlquery.Node, parent Style) (*Element, error) {
	m, style, err := p.common(n, parent)
	if err != nil {
		return nil, err
	}
	if !style.Display {
		return nil, nil
	}

	var el *Element
	switch n.Data {
	case "g", "a", "switch":
		el, err = p.group(n, style)
	case "svg":
		var pos []float64
		pos, err = p.lengths(n, "x", "y")
		if err != nil {
			return nil, err
		}
		m = m.Translate(pos[0], pos[1])
		el, err = p.group(n, style)
	case "path":
		d, _ := attr(n, "d")
		segs, pathErr := parsePathData(d)
		if pathErr != nil {
			p.warn("path data truncated: %s", pathErr)
		}
		el = &Element{Kind: KindPath, Path: segs}
	case "rect":
		el, err = p.rect(n)
	case "circle":
		var v []float64
		v, err = p.lengths(n, "cx", "cy", "r")
		if err == nil && v[2] > 0 {
			el = &Element{Kind: KindPath, Path: ellipsePath(v[0], v[1], v[2], v[2])}
		}
	case "ellipse":
		var v []float64
		v, err = p.lengths(n, "cx", "cy", "rx", "ry")
		if err == nil && v[2] > 0 && v[3] > 0 {
			el = &Element{Kind: KindPath, Path: ellipsePath(v[0], v[1], v[2], v[3])}
		}
	case "line":
		var v []float64
		v, err = p.lengths(n, "x1", "y1", "x2", "y2")
		if err == nil {
			el = &Element{Kind: KindPath, Path: linePath(v[0], v[1], v[2], v[3])}
		}
	case "polyline", "polygon":
		raw, _ := attr(n, "points")
		var segs []Segment
		segs, err = polyPath(raw, n.Data == "polygon")
		if err != nil {
			return nil, fmt.Errorf("%w: <%s>: %w", ErrInvalidSvg, n.Data, err)
		}
		el = &Element{Kind: KindPath, Path: segs}
	case "image":
		el, err = p.image(n)
	case "text":
		el, err = p.text(n, style)
	default:
		p.warn("unsupported element <%s>", n.Data)
	}
	if err != nil || el == nil {
		return nil, err
	}
	el.Transform = m
	el.Style = style
	return el, nil
}

func (p *parser) rect(n *xmlquery.Node) (*Element, error) {
	v, err := p.lengths(n, "x", "y", "width", "height", "rx", "ry")
	if err != nil {
		return nil, err
	}
	x, y, w, h, rx, ry := v[0], v[1], v[2], v[3], v[4], v[5]
	if w <= 0 || h <= 0 {
		return nil, nil
	}
	_, hasRx := attr(n, "rx")
	_, hasRy := attr(n, "ry")
	if hasRx && !hasRy {
		ry = rx
	} else if hasRy && !hasRx {
		rx = ry
	}
	rx, ry = math.Min(rx, w/2), math.Min(ry, h/2)
	return &Element{Kind: KindPath, Path: rectPath(x, y, w, h, rx, ry)}, nil
}

var imageTypes = map[string]string{
	"image/png":  "PNG",
	"image/jpeg": "JPG",
	"image/jpg":  "JPG",
	"image/gif":  "GIF",
}

// decodeDataURI splits a data uri into its media type and payload.
func decodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data uri without payload")
	}
	params := strings.Split(meta, ";")
	mediaType := strings.ToLower(strings.TrimSpace(params[0]))
	isBase64 := false
	for _, param := range params[1:] {
		if strings.TrimSpace(param) == "base64" {
			isBase64 = true
		}
	}

	if !isBase64 {
		data, err := url.PathUnescape(payload)
		return mediaType, []byte(data), err
	}
	// line breaks are allowed inside the encoded payload
	payload = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	return mediaType, data, err
}

func (p *parser) image(n *xmlquery.Node) (*Element, error) {
	v, err := p.lengths(n, "x", "y", "width", "height")
	if err != nil {
		return nil, err
	}
	href, ok := attr(n, "href")
	if !ok {
		return nil, nil
	}
	if !strings.HasPrefix(strings.TrimSpace(href), "data:") {
		p.warn("image %q was not inlined", truncate(href, 64))
		return nil, nil
	}
	mediaType, data, err := decodeDataURI(href)
	if err != nil {
		return nil, fmt.Errorf("%w: image data uri: %w", ErrInvalidSvg, err)
	}
	imageType, ok := imageTypes[mediaType]
	if !ok {
		p.warn("unsupported image type %q", mediaType)
		return nil, nil
	}
	if len(data) == 0 {
		p.warn("empty %s image", mediaType)
		return nil, nil
	}
	return &Element{Kind: KindImage, Image: &Image{
		Type: imageType,
		Data: data,
		X:    v[0],
		Y:    v[1],
		W:    v[2],
		H:    v[3],
	}}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// collapseSpace applies the default xml:space handling to one text run.
// Leading and trailing whitespace shrinks to a single space.
func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

func (p *parser) firstCoordinate(n *xmlquery.Node, name string) (float64, bool, error) {
	raw, ok := attr(n, name)
	if !ok {
		return 0, false, nil
	}
	list, err := parseNumberList(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%w: attribute %s of <%s>: %w", ErrInvalidSvg, name, n.Data, err)
	}
	if len(list) == 0 {
		return 0, false, nil
	}
	return list[0], true, nil
}

func (p *parser) text(n *xmlquery.Node, style Style) (*Element, error) {
	el := &Element{Kind: KindText}

	x, _, err := p.firstCoordinate(n, "x")
	if err != nil {
		return nil, err
	}
	y, _, err := p.firstCoordinate(n, "y")
	if err != nil {
		return nil, err
	}
	first := true

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		run := TextRun{Style: style}
		switch {
		case c.Type == xmlquery.TextNode || c.Type == xmlquery.CharDataNode:
			run.Text = c.Data
		case c.Type == xmlquery.ElementNode && c.Data == "tspan":
			_, tspanStyle, err := p.common(c, style)
			if err != nil {
				return nil, err
			}
			if !tspanStyle.Display {
				continue
			}
			run.Style = tspanStyle
			run.Text = c.InnerText()
			run.X, run.HasX, err = p.firstCoordinate(c, "x")
			if err != nil {
				return nil, err
			}
			run.Y, run.HasY, err = p.firstCoordinate(c, "y")
			if err != nil {
				return nil, err
			}
		default:
			continue
		}
		if first {
			if !run.HasX {
				run.X, run.HasX = x, true
			}
			if !run.HasY {
				run.Y, run.HasY = y, true
			}
		}

		run.Text = collapseSpace(run.Text)
		if first {
			run.Text = strings.TrimLeft(run.Text, " ")
		}
		if run.Text == "" {
			continue
		}
		el.Runs = append(el.Runs, run)
		first = false
	}

	for len(el.Runs) > 0 {
		last := &el.Runs[len(el.Runs)-1]
		last.Text = strings.TrimRight(last.Text, " ")
		if last.Text != "" {
			break
		}
		el.Runs = el.Runs[:len(el.Runs)-1]
	}
	if len(el.Runs) == 0 {
		return nil, nil
	}
	return el, nil
}

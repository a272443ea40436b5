package svgpdf

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/require"
)

func init() {
	api.DisableConfigDir()
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestParseNumberList(t *testing.T) {
	testCases := []struct {
		input    string
		expected []float64
	}{
		{"1 2 3", []float64{1, 2, 3}},
		{"1,2, 3", []float64{1, 2, 3}},
		{"0 0\n595.3\t842", []float64{0, 0, 595.3, 842}},
		{"1e2 -3E-1", []float64{100, -0.3}},
		{"+.5", []float64{0.5}},
		{"", nil},
	}
	for _, test := range testCases {
		got, err := parseNumberList(test.input)
		require.NoError(t, err, test.input)
		diff := cmp.Diff(test.expected, got, approx)
		if diff != "" {
			t.Fatalf("%q: %s", test.input, diff)
		}
	}

	_, err := parseNumberList("1 x 2")
	require.Error(t, err)
}

func TestParseTransform(t *testing.T) {
	testCases := []struct {
		input    string
		expected Matrix
	}{
		{"", Identity},
		{"translate(10)", Matrix{A: 1, D: 1, E: 10}},
		{"translate(10, 20)", Matrix{A: 1, D: 1, E: 10, F: 20}},
		{"scale(2)", Matrix{A: 2, D: 2}},
		{"matrix(1 2 3 4 5 6)", Matrix{A: 1, B: 2, C: 3, D: 4, E: 5, F: 6}},
		{"rotate(90)", Matrix{B: 1, C: -1}},
		{"rotate(90 10 10)", Matrix{B: 1, C: -1, E: 20}},
		// the rightmost transform applies first
		{"translate(10,0) scale(2)", Matrix{A: 2, D: 2, E: 10}},
		{"scale(2) translate(10,0)", Matrix{A: 2, D: 2, E: 20}},
		{"translate(10,0),scale(2)", Matrix{A: 2, D: 2, E: 10}},
	}
	for _, test := range testCases {
		got, err := parseTransform(test.input)
		require.NoError(t, err, test.input)
		diff := cmp.Diff(test.expected, got, approx)
		if diff != "" {
			t.Fatalf("%q: %s", test.input, diff)
		}
	}

	for _, bad := range []string{"translate(1", "rotate(1 2)", "wobble(1)"} {
		_, err := parseTransform(bad)
		require.Error(t, err, bad)
	}
}

func TestParsePathData(t *testing.T) {
	segs, err := parsePathData("M10 10 h5 v5 H10 z m1 1 l1 1 2 2")
	require.NoError(t, err)
	diff := cmp.Diff([]Segment{
		{Op: OpMove, Pts: [6]float64{10, 10}},
		{Op: OpLine, Pts: [6]float64{15, 10}},
		{Op: OpLine, Pts: [6]float64{15, 15}},
		{Op: OpLine, Pts: [6]float64{10, 15}},
		{Op: OpClose},
		{Op: OpMove, Pts: [6]float64{11, 11}},
		{Op: OpLine, Pts: [6]float64{12, 12}},
		{Op: OpLine, Pts: [6]float64{14, 14}},
	}, segs)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestParsePathSmoothCurves(t *testing.T) {
	segs, err := parsePathData("M0 0 C0 10 10 10 10 0 S20 -10 20 0 Q25 5 30 0 T40 0")
	require.NoError(t, err)
	require.Len(t, segs, 5)

	// reflected control point of S
	require.Equal(t, [6]float64{10, -10, 20, -10, 20, 0}, segs[2].Pts)
	// reflected control point of T
	require.Equal(t, OpQuad, segs[4].Op)
	require.Equal(t, [6]float64{35, -5, 40, 0}, segs[4].Pts)
}

func TestParsePathArc(t *testing.T) {
	// half circle of radius 5 around (5, 0)
	segs, err := parsePathData("M0 0 A5 5 0 0 1 10 0")
	require.NoError(t, err)
	require.Greater(t, len(segs), 2)
	require.Equal(t, OpMove, segs[0].Op)

	top := 0.0
	for _, seg := range segs[1:] {
		require.Equal(t, OpCubic, seg.Op)
		dist := math.Hypot(seg.Pts[4]-5, seg.Pts[5])
		require.InDelta(t, 5, dist, 0.05)
		top = math.Min(top, seg.Pts[5])
	}
	last := segs[len(segs)-1]
	require.Equal(t, 10.0, last.Pts[4])
	require.Equal(t, 0.0, last.Pts[5])
	// sweep=1 runs clockwise on screen, through the top half
	require.Less(t, top, -4.9)
}

func TestParsePathUnknownCommand(t *testing.T) {
	segs, err := parsePathData("M0 0 L1 1 X2 2")
	require.Error(t, err)
	require.Len(t, segs, 2)
}

func TestShapeOutlines(t *testing.T) {
	diff := cmp.Diff([]Segment{
		{Op: OpMove, Pts: [6]float64{1, 2}},
		{Op: OpLine, Pts: [6]float64{4, 2}},
		{Op: OpLine, Pts: [6]float64{4, 6}},
		{Op: OpLine, Pts: [6]float64{1, 6}},
		{Op: OpClose},
	}, rectPath(1, 2, 3, 4, 0, 0))
	if diff != "" {
		t.Fatal(diff)
	}

	rounded := rectPath(0, 0, 20, 10, 2, 2)
	require.Equal(t, OpMove, rounded[0].Op)
	require.Equal(t, OpClose, rounded[len(rounded)-1].Op)
	var curves int
	for _, seg := range rounded {
		if seg.Op == OpCubic {
			curves++
		}
	}
	require.GreaterOrEqual(t, curves, 4)

	circle := ellipsePath(10, 10, 5, 5)
	require.Equal(t, Segment{Op: OpMove, Pts: [6]float64{15, 10}}, circle[0])
	require.Equal(t, OpClose, circle[len(circle)-1].Op)
	for _, seg := range circle[1 : len(circle)-1] {
		require.InDelta(t, 5, math.Hypot(seg.Pts[4]-10, seg.Pts[5]-10), 0.05)
	}

	diff = cmp.Diff([]Segment{
		{Op: OpMove, Pts: [6]float64{0, 0}},
		{Op: OpLine, Pts: [6]float64{10, 0}},
		{Op: OpLine, Pts: [6]float64{10, 10}},
		{Op: OpClose},
	}, mustPoly(t, "0,0 10,0 10,10", true))
	if diff != "" {
		t.Fatal(diff)
	}
	require.Len(t, mustPoly(t, "0,0 10,0 10,10", false), 3)
	require.Empty(t, mustPoly(t, " ", true))

	_, err := polyPath("0,0 10", false)
	require.Error(t, err)
}

func mustPoly(t *testing.T, points string, closed bool) []Segment {
	t.Helper()
	segs, err := polyPath(points, closed)
	require.NoError(t, err)
	return segs
}

func TestPartialPathData(t *testing.T) {
	segs, err := parsePathData("M0 0 L10 10 L5 x")
	require.Error(t, err)
	require.Len(t, segs, 2)
}

func TestParsePaint(t *testing.T) {
	testCases := []struct {
		input    string
		expected Paint
		ok       bool
	}{
		{"none", Paint{None: true}, true},
		{"#fff", Paint{Color: Color{255, 255, 255}}, true},
		{"#1A2b3c", Paint{Color: Color{0x1a, 0x2b, 0x3c}}, true},
		{"rgb(255, 0, 10)", Paint{Color: Color{255, 0, 10}}, true},
		{"rgb(100%, 0%, 50%)", Paint{Color: Color{255, 0, 127}}, true},
		{"Navy", Paint{Color: Color{0, 0, 128}}, true},
		{"cornflowerblue", Paint{Color: Color{100, 149, 237}}, true},
		{"currentColor", Paint{}, true},
		{"transparent", Paint{None: true}, true},
		{"wobble", Paint{}, false},
		{"url(#gradient)", Paint{}, false},
		{"#12345", Paint{}, false},
	}
	for _, test := range testCases {
		got, ok := parsePaint(test.input)
		require.Equal(t, test.ok, ok, test.input)
		require.Equal(t, test.expected, got, test.input)
	}
}

func TestInherit(t *testing.T) {
	parent := inherit(defaultStyle, map[string]string{
		"opacity": "0.5",
		"fill":    "red",
	})
	child := inherit(parent, map[string]string{
		"opacity":      "50%",
		"stroke":       "#000",
		"stroke-width": "2pt",
		"fill":         "url(#missing)",
	})
	require.InDelta(t, 0.25, child.Opacity, 1e-9)
	require.Equal(t, Color{255, 0, 0}, child.Fill.Color)
	require.False(t, child.Stroke.None)
	require.Equal(t, 2.0, child.StrokeWidth)

	hidden := inherit(defaultStyle, map[string]string{"display": "none", "visibility": "visible"})
	require.False(t, hidden.Display)
	require.True(t, hidden.Visible)
}

func tinyPNG(t testing.TB) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 1, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pageMarkup(t testing.TB) string {
	data := base64.StdEncoding.EncodeToString(tinyPNG(t))
	return `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink"
     width="595" height="842" viewBox="0 0 1190 1684">
  <defs><clipPath id="c"><rect width="10" height="10"/></clipPath></defs>
  <title>page 1</title>
  <g transform="translate(10,20)" style="fill:#336699;opacity:0.5">
    <rect x="0" y="0" width="100" height="50" rx="5"/>
    <path d="M0 0 L10 10" stroke="black" fill="none"/>
    <circle cx="5" cy="5" r="0"/>
  </g>
  <image x="0" y="100" width="200" height="200" xlink:href="data:image/png;base64,` + data + `"/>
  <image x="0" y="100" width="200" height="200" xlink:href="1/missing.png"/>
  <text x="10" y="400" font-size="24">
    Chapter <tspan font-weight="bold">one</tspan>
  </text>
  <g display="none"><rect width="5" height="5"/></g>
</svg>`
}

func TestParseScene(t *testing.T) {
	scene, err := Parse(pageMarkup(t))
	require.NoError(t, err)

	require.Equal(t, 595.0, scene.Width)
	require.Equal(t, 842.0, scene.Height)
	require.InDelta(t, 0.5, scene.Root.Transform.A, 1e-9)
	require.InDelta(t, 0.5, scene.Root.Transform.D, 1e-9)

	// defs, title, the empty circle, the linked image and the hidden group are dropped
	require.Len(t, scene.Root.Children, 3)

	group := scene.Root.Children[0]
	require.Equal(t, KindGroup, group.Kind)
	require.Equal(t, Matrix{A: 1, D: 1, E: 10, F: 20}, group.Transform)
	require.Len(t, group.Children, 2)
	rect := group.Children[0]
	require.Equal(t, KindPath, rect.Kind)
	require.Equal(t, Color{0x33, 0x66, 0x99}, rect.Style.Fill.Color)
	require.InDelta(t, 0.5, rect.Style.Opacity, 1e-9)
	line := group.Children[1]
	require.True(t, line.Style.Fill.None)
	require.False(t, line.Style.Stroke.None)

	img := scene.Root.Children[1]
	require.Equal(t, KindImage, img.Kind)
	require.Equal(t, "PNG", img.Image.Type)
	require.Equal(t, tinyPNG(t), img.Image.Data)
	require.Equal(t, 200.0, img.Image.W)

	text := scene.Root.Children[2]
	require.Equal(t, KindText, text.Kind)
	require.Len(t, text.Runs, 2)
	require.Equal(t, "Chapter ", text.Runs[0].Text)
	require.True(t, text.Runs[0].HasX)
	require.Equal(t, 400.0, text.Runs[0].Y)
	require.Equal(t, "one", text.Runs[1].Text)
	require.False(t, text.Runs[1].HasX)
	require.True(t, text.Runs[1].Style.Bold)
	require.Equal(t, 24.0, text.Runs[1].Style.FontSize)

	require.Len(t, scene.Warnings, 1)
	require.Contains(t, scene.Warnings[0], "1/missing.png")
}

func TestParseInvalid(t *testing.T) {
	testCases := []struct {
		name   string
		markup string
	}{
		{"not xml", "<svg width='1' height='1'><g>"},
		{"not svg", "<html><body/></html>"},
		{"no size", "<svg><rect width='1' height='1'/></svg>"},
		{"bad transform", "<svg width='1' height='1'><g transform='spin(3)'/></svg>"},
		{"bad image", "<svg width='1' height='1'><image href='data:image/png;base64,***'/></svg>"},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.markup)
			require.ErrorIs(t, err, ErrInvalidSvg)
		})
	}
}

func TestPdfMatrix(t *testing.T) {
	r := &renderer{height: 100}
	require.Equal(t, [6]float64{1, 0, 0, 1, 0, 0}, tmArray(r, Identity))
	// moving down in svg space moves down the page, which is negative y in pdf
	require.Equal(t, [6]float64{1, 0, 0, 1, 10, -20}, tmArray(r, Identity.Translate(10, 20)))
	// scaling around the svg origin keeps the top left corner in place
	require.Equal(t, [6]float64{2, 0, 0, 2, 0, -100}, tmArray(r, Identity.Scale(2, 2)))
}

func tmArray(r *renderer, m Matrix) [6]float64 {
	tm := r.pdfMatrix(m)
	return [6]float64{tm.A, tm.B, tm.C, tm.D, tm.E, tm.F}
}

func TestRender(t *testing.T) {
	out, err := Render(pageMarkup(t))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	ctx, err := api.ReadContext(bytes.NewReader(out), model.NewDefaultConfiguration())
	require.NoError(t, err)
	require.Equal(t, 1, ctx.PageCount)

	dims, err := ctx.PageDims()
	require.NoError(t, err)
	require.InDelta(t, 595, dims[0].Width, 0.01)
	require.InDelta(t, 842, dims[0].Height, 0.01)
}

func TestRenderLandscape(t *testing.T) {
	out, err := Render(`<svg width="300" height="100"><rect width="300" height="100" fill="red"/></svg>`)
	require.NoError(t, err)

	ctx, err := api.ReadContext(bytes.NewReader(out), model.NewDefaultConfiguration())
	require.NoError(t, err)
	dims, err := ctx.PageDims()
	require.NoError(t, err)
	require.InDelta(t, 300, dims[0].Width, 0.01)
	require.InDelta(t, 100, dims[0].Height, 0.01)
}

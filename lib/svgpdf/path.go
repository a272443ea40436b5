package svgpdf

import (
	"fmt"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"
)

// Op is an absolute path operation.
type Op byte

const (
	OpMove  Op = 'M'
	OpLine  Op = 'L'
	OpCubic Op = 'C'
	OpQuad  Op = 'Q'
	OpClose Op = 'Z'
)

// Segment is one absolute path operation. Pts holds control points followed
// by the end point: 1 pair for M/L, 2 for Q, 3 for C, none for Z.
type Segment struct {
	Op  Op
	Pts [6]float64
}

func unfix(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

// segments flattens a compiled rasterx path into float segments. Coordinates
// keep the 1/64 unit precision of the fixed point representation.
func segments(p rasterx.Path) []Segment {
	var segs []Segment
	for i := 0; i < len(p); {
		var seg Segment
		var n int
		switch rasterx.PathCommand(p[i]) {
		case rasterx.PathMoveTo:
			seg.Op, n = OpMove, 2
		case rasterx.PathLineTo:
			seg.Op, n = OpLine, 2
		case rasterx.PathQuadTo:
			seg.Op, n = OpQuad, 4
		case rasterx.PathCubicTo:
			seg.Op, n = OpCubic, 6
		case rasterx.PathClose:
			seg.Op = OpClose
		default:
			return segs
		}
		for j := 0; j < n; j++ {
			seg.Pts[j] = unfix(p[i+1+j])
		}
		segs = append(segs, seg)
		i += 1 + n
	}
	return segs
}

// parsePathData compiles path data into absolute segments. Smooth curves
// are expanded and arcs are approximated with cubic curves. On error the
// segments compiled so far are returned along with it.
func parsePathData(d string) ([]Segment, error) {
	c := oksvg.PathCursor{ErrorMode: oksvg.StrictErrorMode}
	err := c.CompilePath(d)
	return segments(c.Path), err
}

func ellipsePath(cx, cy, rx, ry float64) []Segment {
	var c oksvg.PathCursor
	c.EllipseAt(cx, cy, rx, ry)
	return segments(c.Path)
}

func rectPath(x, y, w, h, rx, ry float64) []Segment {
	var p rasterx.Path
	rasterx.AddRoundRect(x, y, x+w, y+h, rx, ry, 0, rasterx.RoundGap, &p)
	return segments(p)
}

func linePath(x1, y1, x2, y2 float64) []Segment {
	var p rasterx.Path
	p.Start(rasterx.ToFixedP(x1, y1))
	p.Line(rasterx.ToFixedP(x2, y2))
	return segments(p)
}

// polyPath reads the points attribute of a polyline or polygon.
func polyPath(points string, closed bool) ([]Segment, error) {
	if strings.TrimSpace(points) == "" {
		return nil, nil
	}
	var c oksvg.PathCursor
	if err := c.CompilePath("M" + points); err != nil {
		return nil, fmt.Errorf("bad points list %q: %w", points, err)
	}
	if closed && len(c.Path) > 0 {
		c.Path.Stop(true)
	}
	return segments(c.Path), nil
}

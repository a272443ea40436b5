package svgpdf

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"io"
	"math"

	"github.com/go-pdf/fpdf"
)

type renderer struct {
	pdf    *fpdf.Fpdf
	height float64
	tr     func(string) string
	alpha  float64
	images map[uint64]string
}

// pdfMatrix converts an svg matrix into a pdf content stream matrix. fpdf
// takes top-down coordinates in user units while the content stream is
// bottom-up in points, so the matrix is conjugated with the page flip.
func (r *renderer) pdfMatrix(m Matrix) fpdf.TransformMatrix {
	a, b, c, d, e, f := m.A, m.B, m.C, m.D, m.E, m.F
	return fpdf.TransformMatrix{
		A: a,
		B: -b,
		C: -c,
		D: d,
		E: c*r.height + e,
		F: r.height - d*r.height - f,
	}
}

func (r *renderer) setAlpha(alpha float64) {
	if alpha == r.alpha {
		return
	}
	r.pdf.SetAlpha(alpha, "Normal")
	r.alpha = alpha
}

func (r *renderer) element(el *Element, ctm Matrix) {
	ctm = ctm.Mult(el.Transform)
	if el.Kind == KindGroup {
		for _, child := range el.Children {
			r.element(child, ctm)
		}
		return
	}
	if !el.Style.Visible || el.Style.Opacity == 0 {
		return
	}

	if el.Kind == KindPath {
		r.path(el, ctm)
		return
	}

	// graphics state set inside the transform is dropped by TransformEnd
	alpha := r.alpha
	r.pdf.TransformBegin()
	r.pdf.Transform(r.pdfMatrix(ctm))
	switch el.Kind {
	case KindImage:
		r.image(el)
	case KindText:
		r.text(el)
	}
	r.pdf.TransformEnd()
	r.alpha = alpha
}

// tracePath emits the segments mapped into page space by ctm.
func (r *renderer) tracePath(segs []Segment, ctm Matrix) {
	for _, seg := range segs {
		var p [6]float64
		for i := 0; i < len(p); i += 2 {
			p[i], p[i+1] = ctm.Transform(seg.Pts[i], seg.Pts[i+1])
		}
		switch seg.Op {
		case OpMove:
			r.pdf.MoveTo(p[0], p[1])
		case OpLine:
			r.pdf.LineTo(p[0], p[1])
		case OpQuad:
			r.pdf.CurveTo(p[0], p[1], p[2], p[3])
		case OpCubic:
			r.pdf.CurveBezierCubicTo(p[0], p[1], p[2], p[3], p[4], p[5])
		case OpClose:
			r.pdf.ClosePath()
		}
	}
}

func (r *renderer) path(el *Element, ctm Matrix) {
	if len(el.Path) == 0 || el.Path[0].Op != OpMove {
		return
	}
	style := el.Style

	if !style.Fill.None && style.FillOpacity > 0 {
		c := style.Fill.Color
		r.pdf.SetFillColor(c.R, c.G, c.B)
		r.setAlpha(style.Opacity * style.FillOpacity)
		r.tracePath(el.Path, ctm)
		if style.EvenOdd {
			r.pdf.DrawPath("F*")
		} else {
			r.pdf.DrawPath("F")
		}
	}

	width := style.StrokeWidth * strokeScale(ctm)
	if !style.Stroke.None && style.StrokeOpacity > 0 && width > 0 {
		c := style.Stroke.Color
		r.pdf.SetDrawColor(c.R, c.G, c.B)
		r.pdf.SetLineWidth(width)
		r.pdf.SetLineCapStyle(style.LineCap)
		r.pdf.SetLineJoinStyle(style.LineJoin)
		r.setAlpha(style.Opacity * style.StrokeOpacity)
		r.tracePath(el.Path, ctm)
		r.pdf.DrawPath("D")
	}
}

func (r *renderer) image(el *Element) {
	img := el.Image
	h := fnv.New64a()
	h.Write(img.Data)
	key := h.Sum64()

	options := fpdf.ImageOptions{
		ImageType:             img.Type,
		AllowNegativePosition: true,
	}
	name, ok := r.images[key]
	if !ok {
		name = fmt.Sprintf("img%x", key)
		r.pdf.RegisterImageOptionsReader(name, options, bytes.NewReader(img.Data))
		r.images[key] = name
	}
	r.setAlpha(el.Style.Opacity)
	r.pdf.ImageOptions(name, img.X, img.Y, img.W, img.H, false, options, 0, "")
}

func (r *renderer) text(el *Element) {
	var x, y float64
	for _, run := range el.Runs {
		if run.HasX {
			x = run.X
		}
		if run.HasY {
			y = run.Y
		}
		style := run.Style
		if !style.Visible || style.Fill.None {
			continue
		}

		fontStyle := ""
		if style.Bold {
			fontStyle = "B"
		}
		r.pdf.SetFont("Helvetica", fontStyle, style.FontSize)
		// SetFont skips unchanged fonts, which the enclosing transform may
		// have reset
		r.pdf.SetFontSize(style.FontSize)
		c := style.Fill.Color
		r.pdf.SetTextColor(c.R, c.G, c.B)
		r.setAlpha(style.Opacity * style.FillOpacity)

		text := r.tr(run.Text)
		r.pdf.Text(x, y, text)
		x += r.pdf.GetStringWidth(text)
	}
}

// WritePDF renders the scene onto a single page sized like the document.
func (s *Scene) WritePDF(w io.Writer) error {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: s.Width, Ht: s.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)
	pdf.AddPage()

	r := &renderer{
		pdf:    pdf,
		height: s.Height,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		alpha:  1,
		images: map[uint64]string{},
	}
	if s.Root != nil {
		r.element(s.Root, Identity)
	}
	r.setAlpha(1)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

// Render parses markup and renders it to a single page pdf.
func Render(markup string) ([]byte, error) {
	scene, err := Parse(markup)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := scene.WritePDF(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// strokeScale is the factor a transform applies to line widths, exact for
// uniform scaling.
func strokeScale(m Matrix) float64 {
	return math.Sqrt(math.Abs(m.A*m.D - m.B*m.C))
}

package render

import (
	"image"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	trailColor = color.RGBA{G: 255, A: 255}
	arrowColor = color.RGBA{R: 255, A: 255}
	countColor = color.RGBA{G: 255, A: 255}
)

const (
	strokeWidth = 2
	// arrowTip is the head length as a fraction of the arrow length.
	arrowTip   = 0.3
	labelSize  = 12
	countsSize = 18
)

var regular *truetype.Font

func init() {
	var err error
	regular, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Overlay rasterises Instructions onto a fixed-size canvas, optionally on
// top of a background frame.
type Overlay struct {
	Width, Height int
	Background    image.Image
	// ShowCounts toggles the class-count text block.
	ShowCounts bool

	labelFace  font.Face
	countsFace font.Face
}

// NewOverlay returns an overlay of the given size. When background is
// non-nil its bounds set the canvas size instead.
func NewOverlay(width, height int, background image.Image) *Overlay {
	if background != nil {
		b := background.Bounds()
		width, height = b.Dx(), b.Dy()
	}
	return &Overlay{
		Width:      width,
		Height:     height,
		Background: background,
		ShowCounts: true,
		labelFace:  truetype.NewFace(regular, &truetype.Options{Size: labelSize}),
		countsFace: truetype.NewFace(regular, &truetype.Options{Size: countsSize}),
	}
}

// LoadBackground reads a PNG or JPEG frame to draw under the overlay.
func LoadBackground(path string) (image.Image, error) {
	return gg.LoadImage(path)
}

// Draw renders ins and returns the resulting image.
func (o *Overlay) Draw(ins Instructions) image.Image {
	return o.context(ins).Image()
}

// WritePNG renders ins and encodes it to w.
func (o *Overlay) WritePNG(w io.Writer, ins Instructions) error {
	return o.context(ins).EncodePNG(w)
}

// SavePNG renders ins to a PNG file.
func (o *Overlay) SavePNG(path string, ins Instructions) error {
	return gg.SavePNG(path, o.Draw(ins))
}

func (o *Overlay) context(ins Instructions) *gg.Context {
	var dc *gg.Context
	if o.Background != nil {
		dc = gg.NewContextForImage(o.Background)
	} else {
		dc = gg.NewContext(o.Width, o.Height)
		dc.SetColor(color.Black)
		dc.Clear()
	}
	dc.SetLineWidth(strokeWidth)
	dc.SetLineCap(gg.LineCapRound)

	dc.SetColor(trailColor)
	for _, pl := range ins.Polylines {
		if len(pl.Points) < 2 {
			continue
		}
		dc.MoveTo(float64(pl.Points[0].X), float64(pl.Points[0].Y))
		for _, p := range pl.Points[1:] {
			dc.LineTo(float64(p.X), float64(p.Y))
		}
		dc.Stroke()
	}

	dc.SetColor(arrowColor)
	for _, a := range ins.Arrows {
		drawArrow(dc, a)
	}

	dc.SetFontFace(o.labelFace)
	for _, l := range ins.Labels {
		dc.DrawString(l.Text.Text, float64(l.At.X), float64(l.At.Y))
	}

	if o.ShowCounts && len(ins.Counts) > 0 {
		dc.SetColor(countColor)
		dc.SetFontFace(o.countsFace)
		for _, c := range ins.Counts {
			dc.DrawString(c.Text, float64(c.At.X), float64(c.At.Y))
		}
	}
	return dc
}

// drawArrow strokes the shaft and, when the arrow has length, a two-wing
// head at the tip.
func drawArrow(dc *gg.Context, a Arrow) {
	x1, y1 := float64(a.From.X), float64(a.From.Y)
	x2, y2 := float64(a.To.X), float64(a.To.Y)
	dc.DrawLine(x1, y1, x2, y2)
	dc.Stroke()

	length := math.Hypot(x2-x1, y2-y1)
	if length == 0 {
		return
	}
	tip := length * arrowTip
	angle := math.Atan2(y2-y1, x2-x1)
	for _, wing := range []float64{math.Pi / 4, -math.Pi / 4} {
		back := angle + math.Pi + wing
		dc.DrawLine(x2, y2, x2+tip*math.Cos(back), y2+tip*math.Sin(back))
		dc.Stroke()
	}
}

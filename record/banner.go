package record

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/roadeye/ivms/config"
	"github.com/roadeye/ivms/violation"
)

const (
	bannerFontScale = 0.74
	ttfFontSize     = 14
)

var (
	// banner background and text colors
	bannerFill = color.RGBA{R: 60, G: 60, B: 0}
	bannerText = color.RGBA{R: 240, G: 240, B: 240}
)

// Banner draws the evidentiary label strip across the top of an overview
// image. Text uses the built in Hershey face unless a TTF font file is
// configured, which covers characters outside Hershey's range.
type Banner struct {
	cfg   config.Label
	width int
	face  font.Face
}

// NewBanner creates the banner renderer for the given output width
func NewBanner(cfg config.Label, width int) (*Banner, error) {

	b := &Banner{
		cfg:   cfg,
		width: width,
	}

	if cfg.FontFile != "" {
		if err := b.initFont(cfg.FontFile); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// initFont loads the TTF font and sets up a new font face
func (b *Banner) initFont(fontPath string) error {

	fontBytes, err := os.ReadFile(fontPath)

	if err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}

	f, err := opentype.Parse(fontBytes)

	if err != nil {
		return fmt.Errorf("failed to parse font: %w", err)
	}

	b.face, err = opentype.NewFace(f, &opentype.FaceOptions{
		Size:    ttfFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})

	if err != nil {
		return fmt.Errorf("failed to create type face: %w", err)
	}

	return nil
}

// Draw paints the banner onto img. timestamp is the compact violation
// timestamp, plate may be empty when no read is confirmed yet.
func (b *Banner) Draw(img *gocv.Mat, timestamp, plate string,
	vtype violation.Type) {

	gocv.Rectangle(img, image.Rect(0, 0, b.width, b.cfg.Height),
		bannerFill, -1)

	date := fmt.Sprintf("%s-%s-%s", timestamp[0:4], timestamp[4:6],
		timestamp[6:8])
	clock := fmt.Sprintf("%s:%s:%s", timestamp[9:11], timestamp[11:13],
		timestamp[13:15])

	b.cell(img, 10, "Site Code", fmt.Sprintf("%d", b.cfg.SiteCode),
		"Radar ID", b.cfg.RadarID)
	b.cell(img, 150, "Date", date, "Speed", "N/A")
	b.cell(img, 300, "Time", clock, "Place", b.cfg.Place)
	b.cell(img, 450, "ViolationType", bannerType(vtype), "Redlight t.", "")
	b.cell(img, 600, "Plate No.", plate, "Dir", "Arrival")
}

// cell writes one banner column of two caption/value pairs
func (b *Banner) cell(img *gocv.Mat, x int, cap1, val1, cap2, val2 string) {

	b.putText(img, cap1, x, 15)
	b.putText(img, val1, x, 30)
	b.putText(img, cap2, x, 50)
	b.putText(img, val2, x, 65)
}

func (b *Banner) putText(img *gocv.Mat, text string, x, y int) {

	if text == "" {
		return
	}

	if b.face != nil {
		b.putTTFText(img, text, x, y)
		return
	}

	gocv.PutText(img, text, image.Pt(x, y), gocv.FontHersheyComplexSmall,
		bannerFontScale, bannerText, 1)
}

// putTTFText renders text with the loaded TTF face onto a transparent
// overlay and blends it into the image
func (b *Banner) putTTFText(img *gocv.Mat, text string, x, y int) {

	rgba := image.NewRGBA(image.Rect(0, 0, img.Cols(), img.Rows()))
	draw.Draw(rgba, rgba.Bounds(),
		image.NewUniform(color.RGBA{0, 0, 0, 0}), image.Point{}, draw.Src)

	dr := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(color.RGBA{240, 240, 240, 255}),
		Face: b.face,
		Dot: fixed.Point26_6{
			X: fixed.Int26_6(x * 64),
			Y: fixed.Int26_6(y * 64),
		},
	}
	dr.DrawString(text)

	imgRGBA, err := gocv.NewMatFromBytes(rgba.Bounds().Dy(),
		rgba.Bounds().Dx(), gocv.MatTypeCV8UC4, rgba.Pix)

	if imgRGBA.Empty() || err != nil {
		return
	}

	defer imgRGBA.Close()

	gocv.CvtColor(imgRGBA, &imgRGBA, gocv.ColorRGBAToBGR)
	gocv.AddWeighted(*img, 1.0, imgRGBA, 1.0, 0, img)
}

// bannerType is the violation type caption used on the banner
func bannerType(t violation.Type) string {
	if t == violation.TypeMobilePhone {
		return "MobilePhone"
	}
	return "SeatBelt"
}

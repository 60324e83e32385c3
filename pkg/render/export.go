// Package render writes mosaics out as images.
package render

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/mdouchement/hdr/codec/rgbe"

	"github.com/abworrall/mango-mosaic/pkg/mosaic"
)

const (
	textMargin = 10.0
	lineHeight = 16.0
)

// Basename is the output filename for a mosaic, without extension,
// e.g. mosaic_20170528_0605.
func Basename(m *mosaic.Mosaic) string {
	return "mosaic_" + m.Time.UTC().Format("20060102_1504")
}

// Title is the first line of text drawn onto a mosaic.
func Title(m *mosaic.Mosaic) string {
	return m.Time.UTC().Format("2006-01-02 15:04:05") + " UT"
}

// SiteLines lists "<site> - <HH:MM:SS>" for each site that contributed.
func SiteLines(m *mosaic.Mosaic) []string {
	lines := []string{}
	for i, s := range m.Sites {
		if m.Present(i) {
			lines = append(lines, fmt.Sprintf("%s - %s", s.Name, m.SiteTimeString(i)))
		}
	}
	return lines
}

// Export writes the PNG for the mosaic (and the .hdr, if asked for)
// into cfg.Dir, and returns the paths it wrote.
func Export(m *mosaic.Mosaic, cfg mosaic.OutputConfig) ([]string, error) {
	cm, err := GetColormap(cfg.Colormap)
	if err != nil {
		return nil, err
	}
	levels, err := Levels(m, cfg.Tonemapper)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("Export '%s': %w", cfg.Dir, err)
	}
	base := filepath.Join(cfg.Dir, Basename(m))
	paths := []string{}

	img := Annotate(Colorize(levels, cm), Title(m), SiteLines(m))
	if err := WritePNG(img, base+".png"); err != nil {
		return paths, err
	}
	paths = append(paths, base+".png")

	if cfg.HDR {
		if err := WriteHDR(m, base+".hdr"); err != nil {
			return paths, err
		}
		paths = append(paths, base+".hdr")
	}

	mosaic.Logf("[Render] wrote %v", paths)
	return paths, nil
}

// Annotate draws the title and then one line per entry in lines, top
// left, in white.
func Annotate(img image.Image, title string, lines []string) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 1, 1)
	y := textMargin + lineHeight
	dc.DrawString(title, textMargin, y)
	for _, line := range lines {
		y += lineHeight
		dc.DrawString(line, textMargin, y)
	}
	return dc.Image()
}

func WritePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return png.Encode(writer, img)
	}
}

// WriteHDR outputs the raw mosaic values as a Radiance RGBE file, for
// loading into HDR tools. Cells with no data are written as zero.
func WriteHDR(m *mosaic.Mosaic, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("WriteHDR, open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		err := rgbe.Encode(writer, m)
		if err != nil {
			mosaic.Logf("[Render] WriteHDR, encoding RGBE file: %v", err)
		}
		return err
	}
}

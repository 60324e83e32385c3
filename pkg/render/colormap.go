package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/abworrall/mango-mosaic/pkg/emath"
	"github.com/abworrall/mango-mosaic/pkg/mosaic"
)

var Colormaps = []string{"gray", "heat"}

// A Colormap turns a display level in [0,1] into a color.
type Colormap func(level float64) color.Color

func GetColormap(name string) (Colormap, error) {
	switch name {
	case "", "gray":
		return Gray, nil
	case "heat":
		return Heat, nil
	}
	return nil, &mosaic.ConfigurationError{Field: "output.colormap",
		Reason: fmt.Sprintf("'%s' not recognized, want one of %v", name, Colormaps)}
}

// Gray gamma-expands the level, so it looks right to human vision.
func Gray(level float64) color.Color {
	g := uint16(math.Round(emath.GammaExpand_F64(emath.Clamp01(level)) * 0xFFFF))
	return color.RGBA64{g, g, g, 0xFFFF}
}

type keypoint struct {
	col colorful.Color
	pos float64
}

// heatKeys runs black - purple - red - orange - pale yellow.
var heatKeys = []keypoint{
	{mustHex("#000004"), 0.0},
	{mustHex("#57106e"), 0.25},
	{mustHex("#bc3754"), 0.5},
	{mustHex("#f98e09"), 0.75},
	{mustHex("#fcffa4"), 1.0},
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Heat blends between the heat keypoints in CIE-L*a*b*, so the
// perceived brightness climbs steadily with the level.
func Heat(level float64) color.Color {
	level = emath.Clamp01(level)
	for i := 0; i < len(heatKeys)-1; i++ {
		c1, c2 := heatKeys[i], heatKeys[i+1]
		if level <= c2.pos {
			t := (level - c1.pos) / (c2.pos - c1.pos)
			return c1.col.BlendLab(c2.col, t).Clamped()
		}
	}
	return heatKeys[len(heatKeys)-1].col
}

// Colorize paints a grid of levels; NaN cells are black.
func Colorize(levels emath.FloatGrid, cm Colormap) *image.RGBA64 {
	img := image.NewRGBA64(image.Rect(0, 0, levels.Dx(), levels.Dy()))
	black := color.RGBA64{0, 0, 0, 0xFFFF}
	for x := 0; x < levels.Dx(); x++ {
		for y := 0; y < levels.Dy(); y++ {
			if v := levels.Get(x, y); math.IsNaN(v) {
				img.Set(x, y, black)
			} else {
				img.Set(x, y, cm(v))
			}
		}
	}
	return img
}

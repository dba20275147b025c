package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"stim2cone/pkg/cube"
)

// Viewer extracts wavelength planes from a radiance cube as grayscale
// images for visual inspection of stimuli and corrections.
type Viewer struct {
	cube *cube.Cube
}

// NewViewer creates a viewer over the given cube.
func NewViewer(c *cube.Cube) *Viewer {
	return &Viewer{cube: c}
}

// ExtractPlane renders one wavelength plane as a 16-bit grayscale image.
// Values are scaled by the plane maximum so the spatial structure stays
// visible regardless of the absolute radiance level.
func (v *Viewer) ExtractPlane(band int) (image.Image, error) {
	if band < 0 || band >= v.cube.Bands() {
		return nil, fmt.Errorf("visualization: band %d outside cube with %d bands", band, v.cube.Bands())
	}

	plane := v.cube.Plane(band)
	maxVal := 0.0
	for _, s := range plane {
		if s > maxVal {
			maxVal = s
		}
	}

	img := image.NewGray16(image.Rect(0, 0, v.cube.Width, v.cube.Height))
	for y := 0; y < v.cube.Height; y++ {
		for x := 0; x < v.cube.Width; x++ {
			s := plane[y*v.cube.Width+x]
			var value uint16
			if maxVal > 0 {
				value = uint16(math.Max(0, math.Min(65535, s/maxVal*65535)))
			}
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// SavePlane writes an extracted plane as a JPEG image.
func (v *Viewer) SavePlane(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SavePlaneSequence extracts and saves every wavelength plane into
// outputDir, one file per band, named by band index and wavelength.
func (v *Viewer) SavePlaneSequence(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for band := 0; band < v.cube.Bands(); band++ {
		img, err := v.ExtractPlane(band)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("plane_%03d_%.0fnm.jpg", band, v.cube.Wavelengths[band]))
		if err := v.SavePlane(img, filename); err != nil {
			return err
		}
	}

	return nil
}

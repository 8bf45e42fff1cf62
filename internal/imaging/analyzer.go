// Package imaging performs the local, pixel-level pass over a webcam
// frame: camera health, a usability verdict, and a coarse wave estimate.
// It runs on every frame and gates the more expensive stages downstream.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"time"

	"golang.org/x/image/draw"

	"github.com/lox/coastwatch/internal/models"
	"github.com/lox/coastwatch/internal/solar"
)

// Camera status values.
const (
	CameraWorking    = "working"
	CameraNight      = "night"
	CameraOffline    = "offline"
	CameraObstructed = "obstructed"
)

// CameraStatus describes whether the camera produced a usable daytime
// frame, with a reason when it did not.
type CameraStatus struct {
	Status string
	Reason string
}

// Quality is the image usability verdict that gates vision escalation.
type Quality struct {
	Usable bool
	Score  float64 // 0..1
	Issues []string
}

// WaveEstimate is a coarse wave-state classification from whitecap
// coverage and edge structure in the water region.
type WaveEstimate struct {
	Level         string // flat|small|medium|large|heavy
	WhitecapRatio float64
	EdgeDensity   float64
	Confidence    float64
}

// LocalResult bundles everything the local pass derives from one frame.
type LocalResult struct {
	Camera  CameraStatus
	Quality Quality
	Waves   WaveEstimate
}

// Analyzer classifies frames using brightness, uniformity and simple
// water-region statistics. Thresholds operate on 0..255 grayscale values.
type Analyzer struct {
	nightBrightness   float64 // below: dark frame (night or offline)
	offlineBrightness float64 // below: too dark to analyze even if not night
	uniformStdDev     float64 // below: solid color, lens cap or frozen feed

	// injected for tests
	daylight func(lat, lon float64, t time.Time) bool
	now      func() time.Time
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		nightBrightness:   25,
		offlineBrightness: 45,
		uniformStdDev:     8,
		daylight:          solar.IsDaylight,
		now:               time.Now,
	}
}

// analysisWidth bounds the working resolution; statistics are stable well
// below webcam native sizes and downscaling keeps the pass cheap.
const analysisWidth = 320

// Analyze runs the local pass on a single frame. It never fails: an
// undecodable frame comes back as offline and unusable.
func (a *Analyzer) Analyze(imageBytes []byte, beach models.Beach) LocalResult {
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return LocalResult{
			Camera:  CameraStatus{Status: CameraOffline, Reason: "image decode failed"},
			Quality: Quality{Usable: false, Score: 0, Issues: []string{"decode_failed"}},
		}
	}

	img := downscale(src)
	mean, stddev := grayStats(img)

	quality := a.assessQuality(mean, stddev)
	camera := a.cameraStatus(mean, stddev, beach)

	result := LocalResult{Camera: camera, Quality: quality}
	if camera.Status == CameraWorking {
		result.Waves = a.analyzeWaves(img)
	}
	return result
}

func (a *Analyzer) cameraStatus(mean, stddev float64, beach models.Beach) CameraStatus {
	if mean < a.nightBrightness {
		if beach.Latitude != 0 && a.daylight(beach.Latitude, beach.Longitude, a.now()) {
			return CameraStatus{Status: CameraOffline, Reason: "dark image during daytime, camera likely offline"}
		}
		return CameraStatus{Status: CameraNight, Reason: "dark image during nighttime"}
	}
	if stddev < a.uniformStdDev {
		return CameraStatus{Status: CameraObstructed, Reason: fmt.Sprintf("uniform image (std=%.1f)", stddev)}
	}
	if mean < a.offlineBrightness {
		return CameraStatus{Status: CameraOffline, Reason: fmt.Sprintf("very low brightness (%.0f)", mean)}
	}
	return CameraStatus{Status: CameraWorking}
}

func (a *Analyzer) assessQuality(mean, stddev float64) Quality {
	var issues []string
	if mean < 40 {
		issues = append(issues, "too_dark")
	}
	if mean > 230 {
		issues = append(issues, "overexposed")
	}
	if stddev < 15 {
		issues = append(issues, "low_contrast")
	}

	contrast := math.Min(stddev/60.0, 1.0)
	exposure := 1.0 - math.Abs(mean-128)/128.0
	score := contrast*0.6 + exposure*0.4

	return Quality{
		Usable: score >= 0.3 && len(issues) == 0,
		Score:  score,
		Issues: issues,
	}
}

// analyzeWaves inspects the lower part of the frame (the water region for
// a typical beach camera) for whitecap foam and wave structure.
func (a *Analyzer) analyzeWaves(img *image.RGBA) WaveEstimate {
	b := img.Bounds()
	waterTop := b.Min.Y + int(float64(b.Dy())*0.4)

	var whitecaps, edges, total int
	for y := waterTop; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl := rgbAt(img, x, y)
			total++

			// Foam: bright and nearly achromatic.
			lum := luminance(r, g, bl)
			if lum > 200 && chroma(r, g, bl) < 30 {
				whitecaps++
			}

			// Crude gradient edge test against right and lower neighbors.
			if x+1 < b.Max.X && y+1 < b.Max.Y {
				r2, g2, b2 := rgbAt(img, x+1, y)
				r3, g3, b3 := rgbAt(img, x, y+1)
				dx := math.Abs(lum - luminance(r2, g2, b2))
				dy := math.Abs(lum - luminance(r3, g3, b3))
				if dx+dy > 60 {
					edges++
				}
			}
		}
	}
	if total == 0 {
		return WaveEstimate{Level: "flat"}
	}

	whitecapRatio := float64(whitecaps) / float64(total)
	edgeDensity := float64(edges) / float64(total)

	var level string
	switch {
	case whitecapRatio < 0.01:
		level = "flat"
	case whitecapRatio < 0.04:
		level = "small"
	case whitecapRatio < 0.10:
		level = "medium"
	case whitecapRatio < 0.20:
		level = "large"
	default:
		level = "heavy"
	}

	confidence := math.Min(0.3+edgeDensity*2.0, 0.9)

	return WaveEstimate{
		Level:         level,
		WhitecapRatio: whitecapRatio,
		EdgeDensity:   edgeDensity,
		Confidence:    confidence,
	}
}

func downscale(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > analysisWidth {
		h = h * analysisWidth / w
		w = analysisWidth
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func grayStats(img *image.RGBA) (mean, stddev float64) {
	b := img.Bounds()
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return 0, 0
	}

	var sum, sumSq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl := rgbAt(img, x, y)
			lum := luminance(r, g, bl)
			sum += lum
			sumSq += lum * lum
		}
	}
	mean = sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

func rgbAt(img *image.RGBA, x, y int) (r, g, b float64) {
	i := img.PixOffset(x, y)
	return float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
}

func luminance(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

func chroma(r, g, b float64) float64 {
	return math.Max(r, math.Max(g, b)) - math.Min(r, math.Min(g, b))
}

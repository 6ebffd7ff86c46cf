// Package blend merges a warped face into the destination frame.
package blend

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/geometry"
	"github.com/dudu/facewarp/internal/landmarks"
)

// Mode selects how the warped face is merged into the frame
type Mode string

const (
	ModeSeamless Mode = "seamless" // Poisson blending
	ModeFeather  Mode = "feather"  // alpha blend through a blurred mask
	ModeNone     Mode = "none"     // hard copy inside the mask
)

// ParseMode converts a configuration string to a Mode
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSeamless, ModeFeather, ModeNone:
		return m, nil
	}
	return "", fmt.Errorf("unknown blend mode %q", s)
}

// Blender merges warped faces into frames
type Blender struct {
	mode          Mode
	blurSize      int
	colorTransfer bool
	erosionKernel gocv.Mat
}

// NewBlender creates a new face blender. blurSize is rounded up to an odd number.
func NewBlender(mode Mode, blurSize int, colorTransfer bool) *Blender {
	if blurSize < 1 {
		blurSize = 1
	}
	if blurSize%2 == 0 {
		blurSize++
	}
	return &Blender{
		mode:          mode,
		blurSize:      blurSize,
		colorTransfer: colorTransfer,
		erosionKernel: gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(3, 3)),
	}
}

// Mode returns the configured mode
func (b *Blender) Mode() Mode {
	return b.mode
}

// Blend merges warped into frame inside mask. hull is the destination hull and
// positions the seamless clone. warped, frame and mask must share a size; the
// returned Mat is new and owned by the caller.
func (b *Blender) Blend(warped, frame, mask gocv.Mat, hull landmarks.Set) (gocv.Mat, error) {
	if warped.Empty() || frame.Empty() || mask.Empty() {
		return gocv.NewMat(), fmt.Errorf("blend: empty input")
	}
	if warped.Rows() != frame.Rows() || warped.Cols() != frame.Cols() ||
		mask.Rows() != frame.Rows() || mask.Cols() != frame.Cols() {
		return gocv.NewMat(), fmt.Errorf("blend: size mismatch: warped %dx%d, frame %dx%d, mask %dx%d",
			warped.Cols(), warped.Rows(), frame.Cols(), frame.Rows(), mask.Cols(), mask.Rows())
	}

	size := image.Pt(frame.Cols(), frame.Rows())
	box := geometry.BoundingRect(hull).Intersect(image.Rectangle{Max: size})

	face := warped.Clone()
	defer face.Close()
	if b.colorTransfer && !box.Empty() {
		applyColorTransfer(&face, frame, box)
	}

	gray := singleChannel(mask)
	defer gray.Close()

	switch b.EffectiveMode(box, size) {
	case ModeSeamless:
		out := gocv.NewMat()
		center := image.Pt(box.Min.X+box.Dx()/2, box.Min.Y+box.Dy()/2)
		gocv.SeamlessClone(face, frame, gray, center, &out, gocv.NormalClone)
		if out.Empty() {
			out.Close()
			return gocv.NewMat(), fmt.Errorf("blend: seamless clone produced no output")
		}
		return out, nil
	case ModeNone:
		out := frame.Clone()
		face.CopyToWithMask(&out, gray)
		return out, nil
	default:
		return b.feather(face, frame, gray), nil
	}
}

// EffectiveMode returns the mode used for a hull with bounding box box in a
// frame of the given size. Seamless cloning needs a one pixel margin around
// the mask, so hulls touching the frame border are feathered instead.
func (b *Blender) EffectiveMode(box image.Rectangle, size image.Point) Mode {
	if b.mode != ModeSeamless {
		return b.mode
	}
	if box.Empty() || box.Min.X <= 0 || box.Min.Y <= 0 || box.Max.X >= size.X || box.Max.Y >= size.Y {
		return ModeFeather
	}
	return ModeSeamless
}

// feather alpha blends face over frame through a softened mask
func (b *Blender) feather(face, frame, mask gocv.Mat) gocv.Mat {
	soft := b.softenMask(mask)
	defer soft.Close()

	soft3 := gocv.NewMat()
	defer soft3.Close()
	gocv.CvtColor(soft, &soft3, gocv.ColorGrayToBGR)

	alpha := gocv.NewMat()
	defer alpha.Close()
	soft3.ConvertToWithParams(&alpha, gocv.MatTypeCV32FC3, 1.0/255.0, 0)

	ones := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 1, 1, 0), frame.Rows(), frame.Cols(), gocv.MatTypeCV32FC3)
	defer ones.Close()
	inv := gocv.NewMat()
	defer inv.Close()
	gocv.Subtract(ones, alpha, &inv)

	faceF := gocv.NewMat()
	defer faceF.Close()
	face.ConvertTo(&faceF, gocv.MatTypeCV32FC3)
	frameF := gocv.NewMat()
	defer frameF.Close()
	frame.ConvertTo(&frameF, gocv.MatTypeCV32FC3)

	fg := gocv.NewMat()
	defer fg.Close()
	gocv.Multiply(faceF, alpha, &fg)
	bg := gocv.NewMat()
	defer bg.Close()
	gocv.Multiply(frameF, inv, &bg)

	sum := gocv.NewMat()
	defer sum.Close()
	gocv.Add(fg, bg, &sum)

	out := gocv.NewMat()
	sum.ConvertTo(&out, gocv.MatTypeCV8UC3)
	return out
}

// softenMask erodes the mask slightly and blurs its edge
func (b *Blender) softenMask(mask gocv.Mat) gocv.Mat {
	eroded := gocv.NewMat()
	defer eroded.Close()
	gocv.Erode(mask, &eroded, b.erosionKernel)

	blurred := gocv.NewMat()
	gocv.GaussianBlur(eroded, &blurred, image.Pt(b.blurSize, b.blurSize), 0, 0, gocv.BorderDefault)
	return blurred
}

// singleChannel returns an 8-bit single channel copy of mask
func singleChannel(mask gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch mask.Channels() {
	case 3:
		gocv.CvtColor(mask, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(mask, &gray, gocv.ColorBGRAToGray)
	default:
		mask.CopyTo(&gray)
	}
	return gray
}

// applyColorTransfer shifts the LAB statistics of source towards target
// inside box
func applyColorTransfer(source *gocv.Mat, target gocv.Mat, box image.Rectangle) {
	srcROI := source.Region(box)
	defer srcROI.Close()
	tgtROI := target.Region(box)
	defer tgtROI.Close()

	sourceLab := gocv.NewMat()
	defer sourceLab.Close()
	targetLab := gocv.NewMat()
	defer targetLab.Close()
	gocv.CvtColor(srcROI, &sourceLab, gocv.ColorBGRToLab)
	gocv.CvtColor(tgtROI, &targetLab, gocv.ColorBGRToLab)

	sourceMean := gocv.NewMat()
	defer sourceMean.Close()
	sourceStd := gocv.NewMat()
	defer sourceStd.Close()
	targetMean := gocv.NewMat()
	defer targetMean.Close()
	targetStd := gocv.NewMat()
	defer targetStd.Close()
	gocv.MeanStdDev(sourceLab, &sourceMean, &sourceStd)
	gocv.MeanStdDev(targetLab, &targetMean, &targetStd)

	sourceFloat := gocv.NewMat()
	defer sourceFloat.Close()
	sourceLab.ConvertTo(&sourceFloat, gocv.MatTypeCV32FC3)

	channels := gocv.Split(sourceFloat)
	result := make([]gocv.Mat, len(channels))
	for i := range channels {
		result[i] = gocv.NewMat()
		defer channels[i].Close()
		defer result[i].Close()

		srcStd := sourceStd.GetDoubleAt(i, 0)
		if srcStd < 1e-6 {
			srcStd = 1e-6
		}
		scale := targetStd.GetDoubleAt(i, 0) / srcStd
		offset := targetMean.GetDoubleAt(i, 0) - sourceMean.GetDoubleAt(i, 0)*scale

		gocv.AddWeighted(channels[i], scale, channels[i], 0, offset, &result[i])
	}

	mergedF := gocv.NewMat()
	defer mergedF.Close()
	gocv.Merge(result, &mergedF)

	mergedLab := gocv.NewMat()
	defer mergedLab.Close()
	mergedF.ConvertTo(&mergedLab, gocv.MatTypeCV8UC3)

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(mergedLab, &bgr, gocv.ColorLabToBGR)

	bgr.CopyTo(&srcROI)
}

// Close releases blender resources
func (b *Blender) Close() {
	b.erosionKernel.Close()
}

// Package ui shows pipeline output in a preview window.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facewarp/internal/source"
)

// Preview bounds; larger frames are scaled down to fit.
var maxSize = image.Pt(1280, 720)

// Window manages the preview display
type Window struct {
	window     *gocv.Window
	name       string
	lastFrame  time.Time
	frameCount int
	fps        float64
}

// NewWindow creates a new preview window sized for frames of frameSize
func NewWindow(name string, frameSize image.Point) *Window {
	window := gocv.NewWindow(name)
	if fit := source.Fit(frameSize, maxSize); fit.X > 0 && fit.Y > 0 {
		window.ResizeWindow(fit.X, fit.Y)
	}
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		lastFrame: time.Now(),
	}
}

// Show displays a copy of frame with the FPS counter and an optional label.
// frame itself is not modified.
func (w *Window) Show(frame gocv.Mat, label string) {
	w.frameCount++
	now := time.Now()

	// Calculate FPS every second
	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}

	view := frame.Clone()
	defer view.Close()

	gocv.PutText(&view, fmt.Sprintf("FPS: %.1f", w.fps), image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, color.RGBA{R: 0, G: 255, B: 0, A: 255}, 2)
	if label != "" {
		gocv.PutText(&view, label, image.Pt(10, 60),
			gocv.FontHersheyPlain, 1.5, color.RGBA{R: 255, G: 255, B: 0, A: 255}, 2)
	}

	w.window.IMShow(view)
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// QuitRequested polls the window and reports whether Esc or q was pressed
func (w *Window) QuitRequested() bool {
	switch w.WaitKey(1) {
	case 27, 'q', 'Q':
		return true
	}
	return false
}

// FPS returns current frames per second
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}

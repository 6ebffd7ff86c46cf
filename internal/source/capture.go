// Package source provides frames and still images to the warp pipeline.
package source

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Capture reads frames from a video file or a camera
type Capture struct {
	video      *gocv.VideoCapture
	uri        string
	width      int
	height     int
	frameCount int
	mu         sync.Mutex
}

// Open opens uri, which is either a numeric camera index or a video file path
func Open(uri string) (*Capture, error) {
	var (
		video *gocv.VideoCapture
		err   error
	)
	if id, convErr := strconv.Atoi(uri); convErr == nil {
		video, err = gocv.OpenVideoCapture(id)
		if err != nil {
			return nil, fmt.Errorf("failed to open camera %d: %w", id, err)
		}
	} else {
		if _, statErr := os.Stat(uri); statErr != nil {
			return nil, errors.Wrapf(statErr, "video %s", uri)
		}
		video, err = gocv.OpenVideoCapture(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to open video %s: %w", uri, err)
		}
	}

	if !video.IsOpened() {
		video.Close()
		return nil, fmt.Errorf("video source %s could not be opened", uri)
	}

	// Cameras report zero frames
	return &Capture{
		video:      video,
		uri:        uri,
		width:      int(video.Get(gocv.VideoCaptureFrameWidth)),
		height:     int(video.Get(gocv.VideoCaptureFrameHeight)),
		frameCount: int(video.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

// Read captures the next frame into the provided Mat. It returns false at
// the end of the stream.
func (c *Capture) Read(frame *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.video == nil {
		return false
	}

	return c.video.Read(frame) && !frame.Empty()
}

// URI returns the source the capture was opened from
func (c *Capture) URI() string {
	return c.uri
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// FrameCount returns the number of frames in a video file, 0 for cameras
func (c *Capture) FrameCount() int {
	return c.frameCount
}

// Close releases the capture
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.video != nil {
		err := c.video.Close()
		c.video = nil
		return err
	}
	return nil
}

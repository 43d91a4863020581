package capture

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"vidflex-worker-go/internal/config"
	"vidflex-worker-go/internal/models"
)

// gocvDecoder wraps an OpenCV VideoCapture and encodes frames to JPEG.
type gocvDecoder struct {
	cap      *gocv.VideoCapture
	img      gocv.Mat
	streamID string
	width    int
	height   int
	quality  int
	frameID  int64
}

// openGoCVDecoder opens the source with minimal buffering. A streamID of
// "0" selects the local capture device, anything else is treated as a URI.
// The frame rate is a best-effort hint to the backend; pacing is driven by
// wall-clock time in the supervisor.
func openGoCVDecoder(cfg *config.Config, streamID string, frameRate float64) (Decoder, error) {
	var cap *gocv.VideoCapture
	var err error

	if streamID == "0" {
		cap, err = gocv.OpenVideoCapture(0)
	} else {
		cap, err = gocv.OpenVideoCapture(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture %s: %w", streamID, err)
	}

	cap.Set(gocv.VideoCaptureBufferSize, 1)
	if frameRate > 0 {
		cap.Set(gocv.VideoCaptureFPS, frameRate)
	}

	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("video capture is not opened for %s", streamID)
	}

	return &gocvDecoder{
		cap:      cap,
		img:      gocv.NewMat(),
		streamID: streamID,
		width:    cfg.OutputWidth,
		height:   cfg.OutputHeight,
		quality:  cfg.JPEGQuality,
	}, nil
}

func (d *gocvDecoder) Read() (*models.Frame, bool) {
	if !d.cap.Read(&d.img) || d.img.Empty() {
		return nil, false
	}

	frame := d.img
	resized := gocv.NewMat()
	defer resized.Close()
	if d.img.Cols() != d.width || d.img.Rows() != d.height {
		gocv.Resize(d.img, &resized, image.Pt(d.width, d.height), 0, 0, gocv.InterpolationLinear)
		frame = resized
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame,
		[]int{gocv.IMWriteJpegQuality, d.quality})
	if err != nil {
		return nil, false
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	d.frameID++
	return &models.Frame{
		StreamID:  d.streamID,
		Data:      data,
		Width:     d.width,
		Height:    d.height,
		FrameID:   d.frameID,
		Timestamp: time.Now(),
	}, true
}

func (d *gocvDecoder) Close() error {
	d.img.Close()
	return d.cap.Close()
}

// Package thumbnail derives a fixed-size JPEG preview from the first frame
// of a rendered video.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"forge/internal/pkg/errors"
	"forge/internal/ports"
)

const (
	defaultWidth  = 400
	defaultHeight = 400
)

// Deriver extracts a representative frame with ffmpeg and stores it in the
// object store.
type Deriver struct {
	store      ports.ObjectStore
	ffmpegPath string
	timeout    time.Duration
}

func NewDeriver(store ports.ObjectStore, ffmpegPath string, timeout time.Duration) *Deriver {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Deriver{store: store, ffmpegPath: ffmpegPath, timeout: timeout}
}

// Derive writes videoData to a temp file, extracts the first frame as a
// 400x400 padded JPEG and uploads it under thumbnails/<date>/<jobID>.jpg.
// It returns the stored thumbnail URL.
func (d *Deriver) Derive(ctx context.Context, jobID string, videoData []byte) (string, error) {
	const op = "thumbnail.derive"

	tmpDir, err := os.MkdirTemp("", "forge-thumb-*")
	if err != nil {
		return "", errors.Wrap(err, op, "creating temp dir")
	}
	defer os.RemoveAll(tmpDir)

	videoPath := filepath.Join(tmpDir, "input.mp4")
	thumbPath := filepath.Join(tmpDir, "thumb.jpg")

	if err := os.WriteFile(videoPath, videoData, 0o600); err != nil {
		return "", errors.Wrap(err, op, "writing temp video")
	}

	if err := d.extractFrame(ctx, videoPath, thumbPath); err != nil {
		return "", err
	}

	thumb, err := os.ReadFile(thumbPath)
	if err != nil {
		return "", errors.Wrap(err, op, "reading generated thumbnail")
	}
	if len(thumb) == 0 {
		return "", errors.New(errors.CodeInternal, "generated thumbnail is empty")
	}

	key := fmt.Sprintf("thumbnails/%s/%s.jpg", time.Now().UTC().Format("2006-01-02"), jobID)
	out, err := d.store.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: "image/jpeg",
		Reader:      bytes.NewReader(thumb),
		Size:        int64(len(thumb)),
	})
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeStorage, op, "storing thumbnail")
	}

	return out.URL, nil
}

func (d *Deriver) extractFrame(ctx context.Context, videoPath, thumbPath string) error {
	const op = "thumbnail.extractFrame"

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		defaultWidth, defaultHeight, defaultWidth, defaultHeight,
	)

	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-ss", "0",
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", vf,
		"-q:v", "2",
		"-y",
		thumbPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.New(errors.CodeTimeout, "ffmpeg timed out")
		}
		detail := stderr.String()
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return errors.WrapWithCode(err, errors.CodeInternal, op, "ffmpeg failed: "+detail)
	}

	return nil
}

package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrUnavailable is returned when ffprobe is not installed
var ErrUnavailable = errors.New("ffprobe not found")

// VideoInfo describes the first video stream of a source
type VideoInfo struct {
	DurationSec float64 `json:"durationSec"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Codec       string  `json:"codec"`
}

// Binary is the ffprobe executable to run
var Binary = "ffprobe"

// Available reports whether ffprobe can be found on PATH
func Available() bool {
	_, err := exec.LookPath(Binary)
	return err == nil
}

// ProbeVideo detects the duration and video stream format of a file/URL using ffprobe
func ProbeVideo(ctx context.Context, source string) (*VideoInfo, error) {
	// Check if file exists first (for non-URL sources)
	// Skip check for HTTP/HTTPS URLs as ffprobe can handle them directly
	isURL := strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
	if !isURL {
		if _, err := os.Stat(source); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("file does not exist: %s", source)
			}
			return nil, fmt.Errorf("cannot access file: %w", err)
		}
	}

	if !Available() {
		return nil, ErrUnavailable
	}

	cmd := exec.CommandContext(ctx, Binary,
		"-v", "error",
		"-print_format", "default=noprint_wrappers=1",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height:format=duration",
		source,
	)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w\nstderr: %s", err, stderr.String())
	}

	return parseOutput(out.String())
}

// parseOutput reads ffprobe's key=value lines
func parseOutput(output string) (*VideoInfo, error) {
	info := &VideoInfo{}
	seen := false

	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Split on first '=' to handle values that contain '='
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], strings.TrimSpace(parts[1])
		if value == "" || value == "N/A" {
			continue
		}

		var err error
		switch key {
		case "codec_name":
			info.Codec = value
			seen = true
		case "width":
			info.Width, err = strconv.Atoi(value)
		case "height":
			info.Height, err = strconv.Atoi(value)
		case "duration":
			info.DurationSec, err = strconv.ParseFloat(value, 64)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
	}

	if !seen {
		return nil, fmt.Errorf("no video stream found")
	}
	return info, nil
}

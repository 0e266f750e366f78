package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/grafov/m3u8"
)

// ErrParse is wrapped by every manifest parse failure
var ErrParse = errors.New("invalid manifest")

// Variant is one rendition listed by an HLS master playlist
type Variant struct {
	URI        string `json:"uri"`
	Bandwidth  uint32 `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
}

// HLSSummary describes an HLS playlist
type HLSSummary struct {
	Master         bool      `json:"master"`
	Variants       []Variant `json:"variants,omitempty"` // highest bandwidth first
	TargetDuration float64   `json:"targetDuration,omitempty"`
	Segments       int       `json:"segments,omitempty"`
	DurationSec    float64   `json:"durationSec,omitempty"`
	Live           bool      `json:"live"`
}

// ParseHLS decodes an m3u8 master or media playlist
func ParseHLS(body []byte) (*HLSSummary, error) {
	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, fmt.Errorf("%w: hls: %v", ErrParse, err)
	}

	switch listType {
	case m3u8.MASTER:
		master, ok := pl.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("%w: hls: unexpected master playlist type %T", ErrParse, pl)
		}
		summary := &HLSSummary{Master: true}
		for _, v := range master.Variants {
			if v == nil || v.Iframe {
				continue
			}
			summary.Variants = append(summary.Variants, Variant{
				URI:        v.URI,
				Bandwidth:  v.Bandwidth,
				Resolution: v.Resolution,
				Codecs:     v.Codecs,
			})
		}
		if len(summary.Variants) == 0 {
			return nil, fmt.Errorf("%w: hls: master playlist has no variants", ErrParse)
		}
		sort.SliceStable(summary.Variants, func(i, j int) bool {
			return summary.Variants[i].Bandwidth > summary.Variants[j].Bandwidth
		})
		return summary, nil

	case m3u8.MEDIA:
		media, ok := pl.(*m3u8.MediaPlaylist)
		if !ok {
			return nil, fmt.Errorf("%w: hls: unexpected media playlist type %T", ErrParse, pl)
		}
		summary := &HLSSummary{
			TargetDuration: float64(media.TargetDuration),
			Segments:       int(media.Count()),
			Live:           !media.Closed,
		}
		for i, seg := range media.Segments {
			if i >= summary.Segments {
				break
			}
			if seg != nil {
				summary.DurationSec += seg.Duration
			}
		}
		return summary, nil
	}

	return nil, fmt.Errorf("%w: hls: unknown playlist type", ErrParse)
}

// Levels returns the variant labels in order, for status reporting
func (s *HLSSummary) Levels() []string {
	levels := make([]string, 0, len(s.Variants))
	for _, v := range s.Variants {
		label := fmt.Sprintf("%d kbps", v.Bandwidth/1000)
		if v.Resolution != "" {
			label = v.Resolution + " @ " + label
		}
		levels = append(levels, label)
	}
	return levels
}

package manifest

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/zencoder/go-dash/v3/mpd"
)

// Representation is one encoding listed by a DASH manifest
type Representation struct {
	ID        string `json:"id,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	Codecs    string `json:"codecs,omitempty"`
	Bandwidth int64  `json:"bandwidth"`
}

// DASHSummary describes a DASH MPD
type DASHSummary struct {
	Type            string           `json:"type"` // static or dynamic
	Periods         int              `json:"periods"`
	Representations []Representation `json:"representations"` // highest bandwidth first
	DurationSec     float64          `json:"durationSec,omitempty"`
}

// Live reports whether the manifest describes a live presentation
func (s *DASHSummary) Live() bool {
	return s.Type == "dynamic"
}

// ParseDASH decodes an MPD document
func ParseDASH(body []byte) (*DASHSummary, error) {
	m, err := mpd.ReadFromString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: dash: %v", ErrParse, err)
	}

	summary := &DASHSummary{
		Type:    "static",
		Periods: len(m.Periods),
	}
	if m.Type != nil && *m.Type != "" {
		summary.Type = *m.Type
	}
	if m.MediaPresentationDuration != nil {
		d, err := parseISODuration(*m.MediaPresentationDuration)
		if err != nil {
			return nil, fmt.Errorf("%w: dash: %v", ErrParse, err)
		}
		summary.DurationSec = d.Seconds()
	}

	for _, period := range m.Periods {
		if period == nil {
			continue
		}
		for _, as := range period.AdaptationSets {
			if as == nil {
				continue
			}
			for _, rep := range as.Representations {
				if rep == nil {
					continue
				}
				r := Representation{
					ID:       deref(rep.ID),
					MimeType: deref(as.MimeType),
					Codecs:   deref(as.Codecs),
				}
				if rep.MimeType != nil {
					r.MimeType = *rep.MimeType
				}
				if rep.Codecs != nil {
					r.Codecs = *rep.Codecs
				}
				if rep.Bandwidth != nil {
					r.Bandwidth = *rep.Bandwidth
				}
				summary.Representations = append(summary.Representations, r)
			}
		}
	}
	if len(summary.Representations) == 0 {
		return nil, fmt.Errorf("%w: dash: manifest has no representations", ErrParse)
	}
	sort.SliceStable(summary.Representations, func(i, j int) bool {
		return summary.Representations[i].Bandwidth > summary.Representations[j].Bandwidth
	})
	return summary, nil
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// parseISODuration handles the day and time parts of an xs:duration,
// which is all MPD durations use in practice
func parseISODuration(s string) (time.Duration, error) {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += time.Duration(v * float64(unit))
	}
	return total, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

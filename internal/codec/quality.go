// Package codec maps stream quality tiers onto Opus encoder settings
// and wraps the encoder behind an interface the session worker drives.
package codec

import "fmt"

// Quality selects an encoder preset.
type Quality int

const (
	QualityVoice Quality = iota
	QualityStandard
	QualityHigh
	QualityHiFi
)

// BitrateMode selects how the encoder spends its bit budget.
type BitrateMode int

const (
	ModeVBR BitrateMode = iota
	ModeCBR
)

var qualityBitrates = [...]int{
	QualityVoice:    48000,
	QualityStandard: 96000,
	QualityHigh:     128000,
	QualityHiFi:     256000,
}

var qualityComplexity = [...]int{
	QualityVoice:    5,
	QualityStandard: 9,
	QualityHigh:     9,
	QualityHiFi:     9,
}

var qualityNames = [...]string{
	QualityVoice:    "voice",
	QualityStandard: "standard",
	QualityHigh:     "high",
	QualityHiFi:     "hifi",
}

// Bitrate returns the preset's target bitrate in bits per second.
func (q Quality) Bitrate() int { return qualityBitrates[q] }

// Complexity returns the preset's Opus complexity (0-10).
func (q Quality) Complexity() int { return qualityComplexity[q] }

func (q Quality) String() string { return qualityNames[q] }

// ParseQuality maps a wire name to a Quality. Unknown names are an
// error so callers can reject bad requests instead of silently
// downgrading.
func ParseQuality(name string) (Quality, error) {
	for q, n := range qualityNames {
		if n == name {
			return Quality(q), nil
		}
	}
	return QualityStandard, fmt.Errorf("unknown quality %q", name)
}

func (m BitrateMode) String() string {
	if m == ModeCBR {
		return "cbr"
	}
	return "vbr"
}

// ParseBitrateMode maps a wire name to a BitrateMode.
func ParseBitrateMode(name string) (BitrateMode, error) {
	switch name {
	case "vbr":
		return ModeVBR, nil
	case "cbr":
		return ModeCBR, nil
	default:
		return ModeVBR, fmt.Errorf("unknown bitrate mode %q", name)
	}
}

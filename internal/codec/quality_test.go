package codec

import "testing"

func TestQualityPresets(t *testing.T) {
	tests := []struct {
		name       string
		quality    Quality
		bitrate    int
		complexity int
	}{
		{"voice", QualityVoice, 48000, 5},
		{"standard", QualityStandard, 96000, 9},
		{"high", QualityHigh, 128000, 9},
		{"hifi", QualityHiFi, 256000, 9},
	}
	for _, tt := range tests {
		if tt.quality.Bitrate() != tt.bitrate {
			t.Errorf("%s bitrate = %d, want %d", tt.name, tt.quality.Bitrate(), tt.bitrate)
		}
		if tt.quality.Complexity() != tt.complexity {
			t.Errorf("%s complexity = %d, want %d", tt.name, tt.quality.Complexity(), tt.complexity)
		}
		if tt.quality.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.quality.String(), tt.name)
		}
	}
}

func TestParseQuality(t *testing.T) {
	for _, name := range []string{"voice", "standard", "high", "hifi"} {
		q, err := ParseQuality(name)
		if err != nil {
			t.Fatalf("ParseQuality(%q): %v", name, err)
		}
		if q.String() != name {
			t.Errorf("ParseQuality(%q) = %v", name, q)
		}
	}
	if _, err := ParseQuality("ultra"); err == nil {
		t.Error("ParseQuality should reject unknown names")
	}
	if _, err := ParseQuality(""); err == nil {
		t.Error("ParseQuality should reject empty name")
	}
}

func TestParseBitrateMode(t *testing.T) {
	m, err := ParseBitrateMode("cbr")
	if err != nil || m != ModeCBR {
		t.Errorf("ParseBitrateMode(cbr) = %v, %v", m, err)
	}
	m, err = ParseBitrateMode("vbr")
	if err != nil || m != ModeVBR {
		t.Errorf("ParseBitrateMode(vbr) = %v, %v", m, err)
	}
	if _, err := ParseBitrateMode("abr"); err == nil {
		t.Error("ParseBitrateMode should reject unknown modes")
	}
}

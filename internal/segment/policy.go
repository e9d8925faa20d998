package segment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// RequiredModalities selects which modalities a session must carry
type RequiredModalities struct {
	Stability bool `yaml:"stability" json:"stability"`
	GPS       bool `yaml:"gps" json:"gps"`
	Beacon    bool `yaml:"beacon" json:"beacon"`
}

// Policy is the segmentation option set
type Policy struct {
	RequiredModalities          RequiredModalities      `yaml:"requiredModalities" json:"required_modalities"`
	MinSessionDurationSeconds   int                     `yaml:"minSessionDurationSeconds" json:"min_session_duration_seconds"`
	MaxSessionDurationSeconds   int                     `yaml:"maxSessionDurationSeconds" json:"max_session_duration_seconds"` // 0 = unbounded
	CorrelationToleranceSeconds int                     `yaml:"correlationToleranceSeconds" json:"correlation_tolerance_seconds"`
	SessionGapSeconds           int                     `yaml:"sessionGapSeconds" json:"session_gap_seconds"`
	MinSamplesPerModality       map[models.Modality]int `yaml:"minSamplesPerModality" json:"min_samples_per_modality"`
	AllowMissingGPS             bool                    `yaml:"allowMissingGPS" json:"allow_missing_gps"`
	SkipDuplicateSessions       bool                    `yaml:"skipDuplicateSessions" json:"skip_duplicate_sessions"`
}

// Preset names
const (
	PresetPermissive = "permissive"
	PresetStandard   = "standard"
	PresetStrict     = "strict"
)

// DefaultPolicy returns the permissive policy
func DefaultPolicy() Policy {
	return Policy{
		RequiredModalities:          RequiredModalities{Stability: true},
		MinSessionDurationSeconds:   10,
		MaxSessionDurationSeconds:   0,
		CorrelationToleranceSeconds: 300,
		SessionGapSeconds:           300,
		MinSamplesPerModality:       map[models.Modality]int{models.ModalityStability: 1},
		AllowMissingGPS:             true,
		SkipDuplicateSessions:       true,
	}
}

var presets = map[string]func() Policy{
	PresetPermissive: DefaultPolicy,
	PresetStandard: func() Policy {
		p := DefaultPolicy()
		p.MinSessionDurationSeconds = 230
		p.MinSamplesPerModality[models.ModalityStability] = 10
		return p
	},
	PresetStrict: func() Policy {
		p := DefaultPolicy()
		p.MinSessionDurationSeconds = 300
		p.MaxSessionDurationSeconds = 24 * 60 * 60
		p.RequiredModalities.GPS = true
		p.AllowMissingGPS = false
		p.MinSamplesPerModality[models.ModalityStability] = 10
		p.MinSamplesPerModality[models.ModalityGPS] = 10
		return p
	},
}

// Preset returns a named policy
func Preset(name string) (Policy, error) {
	build, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Policy{}, fmt.Errorf("unknown segmentation preset %q (known: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return build(), nil
}

// PresetNames lists the known presets
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the policy for inconsistent values
func (p Policy) Validate() error {
	if p.MinSessionDurationSeconds < 0 {
		return fmt.Errorf("minSessionDurationSeconds must be >= 0, got %d", p.MinSessionDurationSeconds)
	}
	if p.MaxSessionDurationSeconds < 0 {
		return fmt.Errorf("maxSessionDurationSeconds must be >= 0, got %d", p.MaxSessionDurationSeconds)
	}
	if p.MaxSessionDurationSeconds > 0 && p.MaxSessionDurationSeconds < p.MinSessionDurationSeconds {
		return fmt.Errorf("maxSessionDurationSeconds (%d) is below minSessionDurationSeconds (%d)",
			p.MaxSessionDurationSeconds, p.MinSessionDurationSeconds)
	}
	if p.CorrelationToleranceSeconds < 0 {
		return fmt.Errorf("correlationToleranceSeconds must be >= 0, got %d", p.CorrelationToleranceSeconds)
	}
	if p.SessionGapSeconds <= 0 {
		return fmt.Errorf("sessionGapSeconds must be > 0, got %d", p.SessionGapSeconds)
	}
	for m, n := range p.MinSamplesPerModality {
		if n < 0 {
			return fmt.Errorf("minSamplesPerModality[%s] must be >= 0, got %d", m, n)
		}
	}
	return nil
}

// GPSRequired reports whether a session without GPS is rejected
func (p Policy) GPSRequired() bool {
	return p.RequiredModalities.GPS || !p.AllowMissingGPS
}

// required reports whether modality m must be present
func (p Policy) required(m models.Modality) bool {
	switch m {
	case models.ModalityStability:
		return p.RequiredModalities.Stability
	case models.ModalityGPS:
		return p.GPSRequired()
	case models.ModalityBeacon:
		return p.RequiredModalities.Beacon
	}
	return false
}

func (p Policy) gap() time.Duration {
	return time.Duration(p.SessionGapSeconds) * time.Second
}

func (p Policy) tolerance() time.Duration {
	return time.Duration(p.CorrelationToleranceSeconds) * time.Second
}

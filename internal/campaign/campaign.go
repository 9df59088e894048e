// Package campaign provides the campaign definition consumed by the render
// pipeline: an ordered list of scene descriptors plus output settings.
// Campaigns are created by the external API and are never mutated here.
package campaign

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Static errors for campaign validation.
var (
	// ErrNoScenes is returned when a campaign has no scene descriptors.
	ErrNoScenes = errors.New("campaign: no scenes defined")
	// ErrTotalDurationExceeded is returned when the summed scene duration exceeds MaxTotalDurationSec.
	ErrTotalDurationExceeded = errors.New("campaign: total scene duration exceeds 300 seconds")
	// ErrSparseSceneOrder is returned when scene order indexes are not dense and zero-based.
	ErrSparseSceneOrder = errors.New("campaign: scene order indexes must be dense and zero-based")
	// ErrFacecamDurationMismatch is returned when the facecam duration does not equal the total scene duration.
	ErrFacecamDurationMismatch = errors.New("campaign: facecam duration must equal total scene duration")
)

// Duration limits in whole seconds.
const (
	MinSceneDurationSec = 1
	MaxSceneDurationSec = 300
	MaxTotalDurationSec = 300
)

// SceneKind discriminates how a scene resolves its URL.
type SceneKind string

const (
	// SceneManual uses a URL literal from the campaign definition.
	SceneManual SceneKind = "manual"
	// SceneCSV resolves the URL from a named column of the lead row.
	SceneCSV SceneKind = "csv"
)

// Scene is one URL-and-duration segment of a campaign. Exactly one of URL
// (manual) or Column (csv) is meaningful depending on Kind.
type Scene struct {
	OrderIndex  int       `json:"order_index"`
	Kind        SceneKind `json:"kind" validate:"required,oneof=manual csv"`
	URL         string    `json:"url,omitempty" validate:"required_if=Kind manual"`
	Column      string    `json:"column,omitempty" validate:"required_if=Kind csv"`
	DurationSec int       `json:"duration_sec" validate:"min=1,max=300"`
	// Actions, when present, replaces the motion engine with an explicit
	// step list for this scene.
	Actions []Action `json:"actions,omitempty"`
}

// ActionKind names one explicit recorder step.
type ActionKind string

const (
	ActionGoto      ActionKind = "goto"
	ActionWait      ActionKind = "wait"
	ActionClickText ActionKind = "click_text"
	ActionHighlight ActionKind = "highlight"
	ActionScroll    ActionKind = "scroll"
)

// Action is one explicit recorder step for scenes that opt out of the
// motion engine.
type Action struct {
	Kind     ActionKind `json:"kind" validate:"required,oneof=goto wait click_text highlight scroll"`
	URL      string     `json:"url,omitempty"`
	WaitMs   int        `json:"wait_ms,omitempty"`
	Text     string     `json:"text,omitempty"`
	ScrollBy int        `json:"scroll_by,omitempty"`
}

// PIPCorner names the corner the facecam is anchored to.
type PIPCorner string

const (
	PIPTopLeft     PIPCorner = "top-left"
	PIPTopRight    PIPCorner = "top-right"
	PIPBottomLeft  PIPCorner = "bottom-left"
	PIPBottomRight PIPCorner = "bottom-right"
)

// EndPadMode controls how a short scene recording is padded to its exact
// frame count.
type EndPadMode string

const (
	// EndPadFreeze repeats the last frame.
	EndPadFreeze EndPadMode = "freeze"
	// EndPadBlack pads with black frames.
	EndPadBlack EndPadMode = "black"
)

// OutputSettings are the per-campaign render parameters.
type OutputSettings struct {
	Width          int        `json:"width" validate:"min=16"`
	Height         int        `json:"height" validate:"min=16"`
	FPS            int        `json:"fps" validate:"min=1,max=120"`
	PageLoadWaitMs int        `json:"page_load_wait_ms"`
	PIPWidth       int        `json:"pip_width"`
	PIPMargin      int        `json:"pip_margin"`
	PIPCorner      PIPCorner  `json:"pip_corner"`
	EndPad         EndPadMode `json:"end_pad"`
}

// DefaultOutputSettings returns the strict defaults applied when a campaign
// or system settings row leaves a parameter unset.
func DefaultOutputSettings() OutputSettings {
	return OutputSettings{
		Width:          1920,
		Height:         1080,
		FPS:            60,
		PageLoadWaitMs: 3000,
		PIPWidth:       320,
		PIPMargin:      24,
		PIPCorner:      PIPBottomRight,
		EndPad:         EndPadFreeze,
	}
}

// Merge returns a copy of s with zero-valued fields filled from other.
// Used to resolve campaign settings over system settings over defaults.
func (s OutputSettings) Merge(other OutputSettings) OutputSettings {
	if s.Width == 0 {
		s.Width = other.Width
	}
	if s.Height == 0 {
		s.Height = other.Height
	}
	if s.FPS == 0 {
		s.FPS = other.FPS
	}
	if s.PageLoadWaitMs == 0 {
		s.PageLoadWaitMs = other.PageLoadWaitMs
	}
	if s.PIPWidth == 0 {
		s.PIPWidth = other.PIPWidth
	}
	if s.PIPMargin == 0 {
		s.PIPMargin = other.PIPMargin
	}
	if s.PIPCorner == "" {
		s.PIPCorner = other.PIPCorner
	}
	if s.EndPad == "" {
		s.EndPad = other.EndPad
	}
	return s
}

// Campaign is the immutable, user-owned definition of a personalized video.
type Campaign struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	Scenes    []Scene        `json:"scenes" validate:"min=1,dive"`
	Output    OutputSettings `json:"output_settings"`
	CreatedAt time.Time      `json:"created_at"`
}

var validate = validator.New()

// Validate checks scene kinds, durations, ordering density, and the global
// total-duration ceiling.
func (c *Campaign) Validate() error {
	if len(c.Scenes) == 0 {
		return ErrNoScenes
	}

	// Unset output fields resolve from defaults before the bounds apply, so
	// a campaign that leaves output settings empty is valid.
	resolved := *c
	resolved.Output = c.Output.Merge(DefaultOutputSettings())
	if err := validate.Struct(&resolved); err != nil {
		return fmt.Errorf("campaign: %w", err)
	}

	total := 0
	for i, sc := range c.Scenes {
		if sc.OrderIndex != i {
			return ErrSparseSceneOrder
		}
		total += sc.DurationSec
	}
	if total > MaxTotalDurationSec {
		return ErrTotalDurationExceeded
	}
	return nil
}

// TotalDurationSec returns the summed duration of all scenes.
func (c *Campaign) TotalDurationSec() int {
	total := 0
	for _, sc := range c.Scenes {
		total += sc.DurationSec
	}
	return total
}

// CheckFacecamDuration verifies the facecam's probed duration equals the
// total scene duration to the second.
func (c *Campaign) CheckFacecamDuration(facecamSec float64) error {
	total := c.TotalDurationSec()
	// Whole-second comparison: probed durations carry encoder slack.
	if int(facecamSec+0.5) != total {
		return fmt.Errorf("%w: scenes=%ds facecam=%.2fs", ErrFacecamDurationMismatch, total, facecamSec)
	}
	return nil
}

// Slug returns a filesystem-safe identifier derived from the campaign name,
// used as the working-directory prefix.
func (c *Campaign) Slug() string {
	var b strings.Builder
	for _, r := range strings.ToLower(c.Name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "campaign"
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return slug
}

// DecodeScenes parses the scenes jsonb column into an ordered scene list.
func DecodeScenes(raw []byte) ([]Scene, error) {
	var scenes []Scene
	if err := json.Unmarshal(raw, &scenes); err != nil {
		return nil, fmt.Errorf("campaign: decode scenes: %w", err)
	}
	return scenes, nil
}

// DecodeOutputSettings parses the output_settings jsonb column, filling
// unset fields with defaults.
func DecodeOutputSettings(raw []byte) (OutputSettings, error) {
	settings := OutputSettings{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &settings); err != nil {
			return OutputSettings{}, fmt.Errorf("campaign: decode output settings: %w", err)
		}
	}
	return settings.Merge(DefaultOutputSettings()), nil
}

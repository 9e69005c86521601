package imageproxy

import (
	"sort"
	"strings"
)

// FitMode defines how an image is fitted to the preset dimensions.
type FitMode string

const (
	// FitCover scales to cover the target box and crops the overflow.
	FitCover FitMode = "cover"
	// FitContain scales down to fit within the target width, preserving aspect ratio.
	FitContain FitMode = "contain"
)

func (f FitMode) String() string {
	return string(f)
}

// Preset is a named thumbnail transformation.
type Preset struct {
	Name    string
	Width   int
	Height  int
	Fit     FitMode
	Quality int
}

// Validate checks that the preset has usable values.
func (p Preset) Validate() error {
	if p.Name == "" || p.Width <= 0 {
		return ErrInvalidPreset
	}
	// Height may be 0 for contain (proportional scaling).
	if p.Fit == FitCover && p.Height <= 0 {
		return ErrInvalidPreset
	}
	if p.Quality < 1 || p.Quality > 100 {
		return ErrInvalidPreset
	}
	if p.Fit != FitCover && p.Fit != FitContain {
		return ErrInvalidPreset
	}
	return nil
}

var presets = map[string]Preset{
	// Gallery grid cards.
	"card": {Name: "card", Width: 480, Height: 480, Fit: FitCover, Quality: 82},
	// Holdings list rows.
	"thumb": {Name: "thumb", Width: 160, Height: 160, Fit: FitCover, Quality: 78},
	// Detail view.
	"full": {Name: "full", Width: 1200, Height: 0, Fit: FitContain, Quality: 90},
}

// GetPreset returns the preset called name. Names containing path characters are
// rejected before the lookup because presets become cache directory names.
func GetPreset(name string) (Preset, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return Preset{}, ErrInvalidPreset
	}
	p, ok := presets[name]
	if !ok {
		return Preset{}, ErrInvalidPreset
	}
	return p, nil
}

// ListPresets returns every registered preset ordered by name.
func ListPresets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

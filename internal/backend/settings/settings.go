package settings

import (
	"fmt"
	"strconv"

	"github.com/jo-hoe/bedready/internal/backend/imageprocessing"
)

// DefaultMatchPercentage is the similarity a comparison must exceed to count as clear
const DefaultMatchPercentage = 0.98

// Settings is the user-tunable configuration. Every save increments Version.
type Settings struct {
	Version         int     `json:"version" validate:"gte=0"`
	ReferenceImage  string  `json:"reference_image"`
	MatchPercentage float64 `json:"match_percentage" validate:"gte=0,lte=1"`
	CancelPrint     bool    `json:"cancel_print"`
	CropX1          int     `json:"crop_x1"`
	CropY1          int     `json:"crop_y1"`
	CropX2          int     `json:"crop_x2"`
	CropY2          int     `json:"crop_y2"`
	CropX3          int     `json:"crop_x3"`
	CropY3          int     `json:"crop_y3"`
	CropX4          int     `json:"crop_x4"`
	CropY4          int     `json:"crop_y4"`
	DebugMode       bool    `json:"debug_mode"`
}

// Defaults returns the settings used before anything was saved
func Defaults() Settings {
	return Settings{
		Version:         0,
		ReferenceImage:  "",
		MatchPercentage: DefaultMatchPercentage,
		CancelPrint:     false,
		DebugMode:       false,
	}
}

// Quadrilateral returns the crop corners
func (s Settings) Quadrilateral() imageprocessing.Quadrilateral {
	return imageprocessing.NewQuadrilateral(s.CropX1, s.CropY1, s.CropX2, s.CropY2, s.CropX3, s.CropY3, s.CropX4, s.CropY4)
}

func (s *Settings) intFields() map[string]*int {
	return map[string]*int{
		"version": &s.Version,
		"crop_x1": &s.CropX1,
		"crop_y1": &s.CropY1,
		"crop_x2": &s.CropX2,
		"crop_y2": &s.CropY2,
		"crop_x3": &s.CropX3,
		"crop_y3": &s.CropY3,
		"crop_x4": &s.CropX4,
		"crop_y4": &s.CropY4,
	}
}

func (s *Settings) boolFields() map[string]*bool {
	return map[string]*bool{
		"cancel_print": &s.CancelPrint,
		"debug_mode":   &s.DebugMode,
	}
}

// Values flattens the settings into key/value pairs for persistence
func (s Settings) Values() map[string]string {
	values := map[string]string{
		"reference_image":  s.ReferenceImage,
		"match_percentage": strconv.FormatFloat(s.MatchPercentage, 'g', -1, 64),
	}
	for key, ptr := range s.intFields() {
		values[key] = strconv.Itoa(*ptr)
	}
	for key, ptr := range s.boolFields() {
		values[key] = strconv.FormatBool(*ptr)
	}
	return values
}

// FromValues rebuilds settings from stored pairs; absent keys keep their defaults
func FromValues(values map[string]string) (Settings, error) {
	s := Defaults()

	if v, ok := values["reference_image"]; ok {
		s.ReferenceImage = v
	}
	if v, ok := values["match_percentage"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid match_percentage %q: %w", v, err)
		}
		s.MatchPercentage = f
	}
	for key, ptr := range s.intFields() {
		if v, ok := values[key]; ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				return Settings{}, fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*ptr = i
		}
	}
	for key, ptr := range s.boolFields() {
		if v, ok := values[key]; ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return Settings{}, fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*ptr = b
		}
	}

	return s, nil
}

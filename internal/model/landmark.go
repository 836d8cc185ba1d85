package model

// ReferencePoint is a fixed coordinate that buildings are measured against.
type ReferencePoint struct {
	Latitude  float64 `json:"latitude" yaml:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude" mapstructure:"longitude"`
}

// IsFinite reports whether both coordinates are usable numbers.
func (p ReferencePoint) IsFinite() bool {
	return isFinite(p.Latitude) && isFinite(p.Longitude)
}

// Landmark is a named reference point.
type Landmark struct {
	Name string `json:"name" yaml:"name" mapstructure:"name"`
	ReferencePoint `yaml:",inline" mapstructure:",squash"`
}

// CristoRedentor is the default landmark.
// Source: https://latitude.to/articles-by-country/br/brazil/325/christ-the-redeemer-statue
var CristoRedentor = Landmark{
	Name: "Cristo Redentor",
	ReferencePoint: ReferencePoint{
		Latitude:  -22.950996196,
		Longitude: -43.206499174,
	},
}

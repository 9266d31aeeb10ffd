package models

// Confidence grades how sure the model is about the inferred PEA office.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Valid reports whether c is one of the three known grades.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Coordinates is a WGS84 point as returned inside the structured reply block.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationResult is the structured answer decoded from an assistant reply.
type LocationResult struct {
	OfficeName      string       `json:"officeName" validate:"required"`
	Province        string       `json:"province" validate:"required"`
	District        string       `json:"district,omitempty"`
	Confidence      Confidence   `json:"confidence" validate:"required,oneof=High Medium Low"`
	Reasoning       string       `json:"reasoning"`
	SuggestedAction string       `json:"suggestedAction"`
	Coordinates     *Coordinates `json:"coordinates,omitempty"`
}

func (r LocationResult) Clone() LocationResult {
	out := r
	if r.Coordinates != nil {
		c := *r.Coordinates
		out.Coordinates = &c
	}
	return out
}

// GeoBias is the requester's approximate position, used to bias map retrieval.
type GeoBias struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

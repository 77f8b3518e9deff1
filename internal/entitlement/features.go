// Package entitlement resolves what a tenant's subscription grants: the
// enabled features and the addon capacity it may use or buy.
package entitlement

import (
	"encoding/json"
	"sort"
)

// FeatureCode is the closed set of features the product gates on.
type FeatureCode string

const (
	FeatureIdeaBox      FeatureCode = "IDEA_BOX_CORE"
	FeatureIncidents    FeatureCode = "INCIDENTS_CORE"
	FeatureEvents       FeatureCode = "EVENTS_CORE"
	FeatureCustomDomain FeatureCode = "CUSTOM_DOMAIN"
)

// AllFeatures lists every known feature code.
var AllFeatures = []FeatureCode{
	FeatureIdeaBox,
	FeatureIncidents,
	FeatureEvents,
	FeatureCustomDomain,
}

// ParseFeatureCode reports false for codes outside the closed set.
func ParseFeatureCode(raw string) (FeatureCode, bool) {
	code := FeatureCode(raw)
	for _, known := range AllFeatures {
		if code == known {
			return code, true
		}
	}
	return "", false
}

// FeatureSet is a membership set. The zero value has nothing enabled.
type FeatureSet map[FeatureCode]struct{}

func NewFeatureSet(codes ...FeatureCode) FeatureSet {
	s := make(FeatureSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

func (s FeatureSet) Has(code FeatureCode) bool {
	_, ok := s[code]
	return ok
}

// Codes returns the members in a stable order.
func (s FeatureSet) Codes() []FeatureCode {
	out := make([]FeatureCode, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s FeatureSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Codes())
}

func (s *FeatureSet) UnmarshalJSON(data []byte) error {
	var codes []FeatureCode
	if err := json.Unmarshal(data, &codes); err != nil {
		return err
	}
	*s = NewFeatureSet(codes...)
	return nil
}

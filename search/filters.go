package search

import (
	"fmt"
	"strings"
)

// Education is one of the education levels a search can be narrowed to.
type Education string

const (
	HighSchool Education = "high_school"
	Associate  Education = "associate"
	Bachelor   Education = "bachelor"
	Master     Education = "master"
	Doctorate  Education = "doctorate"
)

// EducationLevels lists the accepted values in ascending order.
var EducationLevels = []Education{HighSchool, Associate, Bachelor, Master, Doctorate}

// Valid reports whether e is empty or one of EducationLevels.
func (e Education) Valid() bool {
	if e == "" {
		return true
	}
	for _, l := range EducationLevels {
		if e == l {
			return true
		}
	}
	return false
}

// Filters narrow a resume search. Keywords and Location are required; a
// zero ExperienceYears or empty EducationLevel leaves that filter unset.
type Filters struct {
	Keywords        string    `json:"keywords"`
	Location        string    `json:"location"`
	ExperienceYears int       `json:"experience_years,omitempty"`
	EducationLevel  Education `json:"education_level,omitempty"`
}

// Validate checks the filters before any browser work. Errors wrap
// ErrInvalidFilters.
func (f Filters) Validate() error {
	var missing []string
	if strings.TrimSpace(f.Keywords) == "" {
		missing = append(missing, "keywords")
	}
	if strings.TrimSpace(f.Location) == "" {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidFilters, strings.Join(missing, " and "))
	}
	if f.ExperienceYears < 0 {
		return fmt.Errorf("%w: experience_years must be positive, got %d", ErrInvalidFilters, f.ExperienceYears)
	}
	if !f.EducationLevel.Valid() {
		return fmt.Errorf("%w: unknown education_level %q", ErrInvalidFilters, f.EducationLevel)
	}
	return nil
}

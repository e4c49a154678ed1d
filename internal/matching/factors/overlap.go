package factors

import (
	"fmt"
	"strings"

	"advisor-match-engine/internal/models"
)

// Language scores how well the provider's languages cover the seeker's
// preferred ones.
func Language(in Input) Result {
	if in.Provider == nil || in.Seeker == nil {
		return Result{}
	}
	wanted, matched := intersect(in.Seeker.PreferredLanguages, in.Provider.Languages)
	if len(wanted) == 0 || len(models.NormalizeSet(in.Provider.Languages)) == 0 {
		return Result{}
	}

	if len(matched) == len(wanted) {
		return Result{Score: LanguageWeight, Explanation: "Speaks all your preferred languages"}
	}

	score := LanguageWeight * len(matched) / len(wanted)
	if score <= 0 {
		return Result{}
	}
	return Result{
		Score:       score,
		Explanation: fmt.Sprintf("Speaks %d of your %d preferred languages", len(matched), len(wanted)),
	}
}

// Expertise scores coverage of the seeker's service needs by the provider's expertise.
func Expertise(in Input) Result {
	if in.Provider == nil || in.Seeker == nil {
		return Result{}
	}
	needs, matched := intersect(in.Seeker.ServiceNeeds, in.Provider.Expertise)
	if len(needs) == 0 || len(matched) == 0 {
		return Result{}
	}

	score := ExpertiseWeight * len(matched) / len(needs)

	var explanation string
	switch {
	case len(matched) == len(needs):
		explanation = "Specializes in all of your service needs"
	case 2*len(matched) > len(needs):
		explanation = fmt.Sprintf("Covers most of your service needs (%d of %d)", len(matched), len(needs))
	default:
		explanation = fmt.Sprintf("Has expertise in %d of %d of your service needs", len(matched), len(needs))
	}
	return Result{Score: score, Explanation: explanation}
}

// Exclusion applies the fixed penalty when the provider offers any category
// the seeker excluded.
func Exclusion(in Input) Result {
	if in.Provider == nil {
		return Result{}
	}
	_, hit := intersect(in.Preferences.ExcludedCategories, in.Provider.Expertise)
	if len(hit) == 0 {
		return Result{}
	}
	return Result{
		Score:       -ExclusionPenalty,
		Explanation: fmt.Sprintf("Warning: offers services in categories you excluded (%s)", strings.Join(hit, ", ")),
	}
}

// Location compares provider and seeker locations. "City, Region" values
// that only share the region earn half the weight.
func Location(in Input) Result {
	if in.Provider == nil || in.Seeker == nil {
		return Result{}
	}
	p := models.NormalizeTerm(in.Provider.Location)
	s := models.NormalizeTerm(in.Seeker.Location)
	if p == "" || s == "" {
		return Result{}
	}
	if p == s {
		return Result{Score: LocationWeight, Explanation: "Located in your area"}
	}
	if pr, sr := region(p), region(s); pr != "" && pr == sr {
		return Result{Score: LocationWeight / 2, Explanation: "Located in your region"}
	}
	return Result{}
}

func region(loc string) string {
	idx := strings.LastIndex(loc, ",")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(loc[idx+1:])
}

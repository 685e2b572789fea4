package academy

import (
	"sort"
	"time"
)

// DefaultCategories are seeded on a fresh database.
var DefaultCategories = []Category{
	{Name: "Pre-Infantil", MinAge: 6, MaxAge: 8},
	{Name: "Infantil A", MinAge: 9, MaxAge: 10},
	{Name: "Infantil B", MinAge: 11, MaxAge: 12},
	{Name: "Cadete", MinAge: 13, MaxAge: 14},
	{Name: "Juvenil", MinAge: 15, MaxAge: 17},
	{Name: "Mayores", MinAge: 18, MaxAge: 99},
}

// AgeAt returns the age in completed years on the given day.
func AgeAt(birth, on time.Time) int {
	age := on.Year() - birth.Year()
	if on.Month() < birth.Month() || (on.Month() == birth.Month() && on.Day() < birth.Day()) {
		age--
	}
	return age
}

// CategoryFor returns the category whose range contains age.
// Categories are scanned by ascending MinAge; the first match wins.
// Returns nil when no range matches.
func CategoryFor(categories []Category, age int) *Category {
	sorted := make([]Category, len(categories))
	copy(sorted, categories)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinAge < sorted[j].MinAge })

	for _, c := range sorted {
		if age >= c.MinAge && age <= c.MaxAge {
			return &c
		}
	}
	return nil
}

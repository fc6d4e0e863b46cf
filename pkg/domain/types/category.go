package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// Category classifies an activity for the weighted selector's bias rules
type Category string

const (
	// CategoryRestorative restores energy (e.g. nap)
	CategoryRestorative Category = "restorative"
	// CategoryCreative is high-exertion creative work (e.g. draw)
	CategoryCreative Category = "creative"
	// CategorySocial is interaction with the outside world (e.g. post_update)
	CategorySocial Category = "social"
	// CategoryOutdoor is high-exertion outdoor activity (e.g. take_a_walk)
	CategoryOutdoor Category = "outdoor"
	// CategoryModerate is low-stakes, moderate-exertion activity (e.g. play)
	CategoryModerate Category = "moderate"
	// CategoryReflective is introspection over stored memories
	CategoryReflective Category = "reflective"
)

// Validate checks if the Category is a known value
func (c Category) Validate() error {
	switch c {
	case CategoryRestorative, CategoryCreative, CategorySocial,
		CategoryOutdoor, CategoryModerate, CategoryReflective:
		return nil
	default:
		return goerr.New("invalid activity category", goerr.V("category", c))
	}
}

// String returns the string representation of Category
func (c Category) String() string {
	return string(c)
}

// HighExertion reports whether activities in this category should be
// suppressed when energy is low and boosted when energy is high.
func (c Category) HighExertion() bool {
	return c == CategoryCreative || c == CategoryOutdoor
}

// MoodLifting reports whether activities in this category get a bonus
// when happiness is low.
func (c Category) MoodLifting() bool {
	return c == CategoryCreative || c == CategorySocial || c == CategoryOutdoor
}

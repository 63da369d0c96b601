package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Unrated is the sentinel for a book without a rating. It is distinct
// from a zero-star rating and serializes as the string "Unrated".
const Unrated Rating = -1

// Rating is a star rating in [0,5] or the Unrated sentinel.
type Rating int

// ParseRating normalizes free-form rating input. Empty input and the
// sentinel string map to Unrated; numeric input is clamped to [0,5].
func ParseRating(s string) Rating {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unrated") {
		return Unrated
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Unrated
	}
	return clampRating(n)
}

func clampRating(n int) Rating {
	if n < 0 {
		return 0
	}
	if n > 5 {
		return 5
	}
	return Rating(n)
}

// IsRated reports whether the rating holds an actual star value.
func (r Rating) IsRated() bool {
	return r >= 0
}

func (r Rating) String() string {
	if !r.IsRated() {
		return "Unrated"
	}
	return strconv.Itoa(int(r))
}

func (r Rating) MarshalJSON() ([]byte, error) {
	if !r.IsRated() {
		return json.Marshal("Unrated")
	}
	return json.Marshal(int(r))
}

func (r *Rating) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*r = clampRating(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("rating: expected number or string, got %s", data)
	}
	*r = ParseRating(s)
	return nil
}

// Book is the unit of persisted data. JSON field names match the
// document layout shared between the local slot and the remote file.
type Book struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url,omitempty"`
	Status       string `json:"status"`
	TrackingType string `json:"trackingType"`
	CurrentCount int    `json:"currentCount"`
	Rating       Rating `json:"rating"`
	IsFavorite   bool   `json:"isFavorite"`
}

// Collection is the ordered list of book records. Order is insertion
// order; filtering never reorders the underlying sequence.
type Collection []Book

// Clone returns an independent copy of the collection.
func (c Collection) Clone() Collection {
	if c == nil {
		return nil
	}
	out := make(Collection, len(c))
	copy(out, c)
	return out
}

// IndexOf returns the position of the book with the given id, or -1.
func (c Collection) IndexOf(id int64) int {
	for i, b := range c {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// Find returns the book with the given id.
func (c Collection) Find(id int64) (Book, bool) {
	if i := c.IndexOf(id); i >= 0 {
		return c[i], true
	}
	return Book{}, false
}

// Equal reports deep content equality, treating nil and empty as equal.
func (c Collection) Equal(other Collection) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// ContainsID reports whether a record with the given id exists.
func (c Collection) ContainsID(id int64) bool {
	return c.IndexOf(id) >= 0
}

package jobs

import "errors"

var errNoMatch = errors.New("no match")

// field extracts one lookup key of an item
type field[T any] struct {
	name string
	get  func(T) string
}

// lookup tries each field in order. The first field with any match decides:
// one match is returned, several are an AmbiguousError.
func lookup[T any](items []T, value string, fields ...field[T]) (*T, error) {
	for _, f := range fields {
		var matches []int
		for i, item := range items {
			if f.get(item) == value {
				matches = append(matches, i)
			}
		}

		switch len(matches) {
		case 0:
			continue
		case 1:
			return &items[matches[0]], nil
		default:
			return nil, &AmbiguousError{Key: f.name, Value: value, Count: len(matches)}
		}
	}
	return nil, errNoMatch
}

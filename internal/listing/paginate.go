package listing

import (
	"math"

	"school-identity-onboarding/internal/model"
)

const (
	DefaultPage = 1
	DefaultSize = 20
	MaxSize     = 200
)

// Clamp normalizes page/size request parameters.
func Clamp(page, size int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if size < 1 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return page, size
}

// Paginate slices an in-memory list into one canonical page.
func Paginate[T any](items []T, page, size int) model.CanonicalPage[T] {
	page, size = Clamp(page, size)
	total := len(items)

	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	out := make([]T, end-start)
	copy(out, items[start:end])

	return model.CanonicalPage[T]{
		Items: out,
		Total: total,
		Page:  page,
		Size:  size,
		Pages: int(math.Ceil(float64(total) / float64(size))),
		Shape: model.ShapeArray,
	}
}

// Filter keeps the items matching keep, preserving order.
func Filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Offset converts a page/size pair into the skip/limit pair used by the
// provisioning service.
func Offset(page, size int) (skip, limit int) {
	page, size = Clamp(page, size)
	return (page - 1) * size, size
}

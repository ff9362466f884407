package model

// PageShape names which recognized payload layout a list came from.
type PageShape string

const (
	ShapeNone        PageShape = ""
	ShapeArray       PageShape = "array"
	ShapeItems       PageShape = "items"
	ShapeData        PageShape = "data"
	ShapeDataItems   PageShape = "data.items"
	ShapeNestedItems PageShape = "nested.items"
)

// CanonicalPage is the single pagination shape every list payload is
// coerced into. Total and Pages are zero when Shape is ShapeNone.
type CanonicalPage[T any] struct {
	Items []T       `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Size  int       `json:"size"`
	Pages int       `json:"pages"`
	Shape PageShape `json:"-"`
}

func EmptyPage[T any]() CanonicalPage[T] {
	return CanonicalPage[T]{Items: []T{}, Page: 1}
}

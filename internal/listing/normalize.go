// Package listing coerces the list payloads of the identity and
// provisioning services into one CanonicalPage shape.
package listing

import (
	"encoding/json"
	"math"
	"sort"

	"school-identity-onboarding/internal/model"
)

// matcher recognizes one payload layout. It returns the located array and
// the object that held it (nil for a bare array).
type matcher struct {
	shape model.PageShape
	match func(raw any) ([]any, map[string]any, bool)
}

// Order matters: the first matcher that recognizes the payload wins.
var matchers = []matcher{
	{model.ShapeArray, matchArray},
	{model.ShapeItems, matchKey("items")},
	{model.ShapeData, matchKey("data")},
	{model.ShapeDataItems, matchDataItems},
	{model.ShapeNestedItems, matchNestedItems},
}

// Normalize decodes a raw JSON list payload. It never fails: a payload with
// no recognizable array yields an empty page.
func Normalize[T any](raw []byte) model.CanonicalPage[T] {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return model.EmptyPage[T]()
	}
	return NormalizeValue[T](decoded)
}

// NormalizeValue is Normalize for a payload already decoded into
// map[string]any / []any values.
func NormalizeValue[T any](raw any) model.CanonicalPage[T] {
	for _, m := range matchers {
		arr, container, ok := m.match(raw)
		if !ok {
			continue
		}
		items, ok := convertItems[T](arr)
		if !ok {
			return model.EmptyPage[T]()
		}
		page := paginationOf[T](items, container)
		page.Shape = m.shape
		return page
	}
	return model.EmptyPage[T]()
}

func matchArray(raw any) ([]any, map[string]any, bool) {
	arr, ok := raw.([]any)
	return arr, nil, ok
}

func matchKey(key string) func(raw any) ([]any, map[string]any, bool) {
	return func(raw any) ([]any, map[string]any, bool) {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, nil, false
		}
		arr, ok := obj[key].([]any)
		return arr, obj, ok
	}
}

func matchDataItems(raw any) ([]any, map[string]any, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, nil, false
	}
	data, ok := obj["data"].(map[string]any)
	if !ok {
		return nil, nil, false
	}
	arr, ok := data["items"].([]any)
	return arr, data, ok
}

// matchNestedItems searches depth-first for any "items" array. Keys are
// visited in sorted order so the result does not depend on map iteration.
func matchNestedItems(raw any) ([]any, map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		if arr, ok := v["items"].([]any); ok {
			return arr, v, true
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if arr, container, ok := matchNestedItems(v[k]); ok {
				return arr, container, true
			}
		}
	case []any:
		for _, elem := range v {
			if arr, container, ok := matchNestedItems(elem); ok {
				return arr, container, true
			}
		}
	}
	return nil, nil, false
}

func convertItems[T any](arr []any) ([]T, bool) {
	items := make([]T, 0, len(arr))
	if len(arr) == 0 {
		return items, true
	}
	data, err := json.Marshal(arr)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false
	}
	return items, true
}

func paginationOf[T any](items []T, container map[string]any) model.CanonicalPage[T] {
	page := model.CanonicalPage[T]{Items: items}

	size, hasSize := intField(container, "size", "limit", "per_page")
	if !hasSize || size <= 0 {
		size = len(items)
	}
	total, hasTotal := intField(container, "total", "count")
	if !hasTotal {
		total = len(items)
	}

	page.Page = 1
	if p, ok := intField(container, "page"); ok && p > 0 {
		page.Page = p
	} else if skip, ok := intField(container, "skip", "offset"); ok && size > 0 {
		page.Page = skip/size + 1
	}

	page.Size = size
	page.Total = total
	if pages, ok := intField(container, "pages", "total_pages"); ok {
		page.Pages = pages
	} else if size > 0 {
		page.Pages = int(math.Ceil(float64(total) / float64(size)))
	}
	return page
}

func intField(obj map[string]any, keys ...string) (int, bool) {
	if obj == nil {
		return 0, false
	}
	for _, key := range keys {
		switch v := obj[key].(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		case int64:
			return int(v), true
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n), true
			}
		}
	}
	return 0, false
}

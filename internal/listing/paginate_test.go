package listing

import "testing"

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	cases := []struct {
		page, size int
		want       []int
		pages      int
	}{
		{1, 2, []int{1, 2}, 3},
		{3, 2, []int{5}, 3},
		{4, 2, []int{}, 3},
		{0, 0, []int{1, 2, 3, 4, 5}, 1},
	}
	for _, tc := range cases {
		got := Paginate(items, tc.page, tc.size)
		if len(got.Items) != len(tc.want) {
			t.Fatalf("Paginate(%d,%d) = %v, want %v", tc.page, tc.size, got.Items, tc.want)
		}
		for i := range tc.want {
			if got.Items[i] != tc.want[i] {
				t.Fatalf("Paginate(%d,%d) = %v, want %v", tc.page, tc.size, got.Items, tc.want)
			}
		}
		if got.Pages != tc.pages || got.Total != 5 {
			t.Fatalf("Paginate(%d,%d) meta = %+v", tc.page, tc.size, got)
		}
	}
}

func TestFilter(t *testing.T) {
	got := Filter([]string{"ERROR", "SUCCESS", "ERROR"}, func(s string) bool { return s == "ERROR" })
	if len(got) != 2 {
		t.Fatalf("Filter = %v", got)
	}
}

func TestOffsetAndClamp(t *testing.T) {
	skip, limit := Offset(3, 25)
	if skip != 50 || limit != 25 {
		t.Fatalf("Offset = %d,%d", skip, limit)
	}
	if _, size := Clamp(1, 1000); size != MaxSize {
		t.Fatalf("size should clamp to %d", MaxSize)
	}
}

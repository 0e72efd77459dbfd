package gen

// IndexOf returns the index of the first element equal to v, or -1.
func IndexOf[T comparable](slice []T, v T) int {
	for i := range slice {
		if slice[i] == v {
			return i
		}
	}
	return -1
}

// CopySlice returns a shallow copy of the slice.
func CopySlice[T any](slice []T) []T {
	c := make([]T, len(slice))
	copy(c, slice)
	return c
}

func Mode[T comparable](src []T) (mode T, count int) {
	counts := make(map[T]int)
	for _, v := range src {
		counts[v]++
	}
	for k, v := range counts {
		if v > count {
			mode = k
			count = v
		}
	}
	return
}

package functional

func Map[T, V any](slice []T, f func(T) V) []V {
	result := make([]V, len(slice))
	for i, v := range slice {
		result[i] = f(v)
	}

	return result
}

func Distinct[T comparable](slice []T) []T {
	seen := make(map[T]struct{})
	result := []T{}

	for _, v := range slice {
		if _, ok := seen[v]; !ok {
			result = append(result, v)
			seen[v] = struct{}{}
		}
	}
	return result
}

// GroupBy collects value(v) under key(v), keeping the input order within
// each group.
func GroupBy[T any, K comparable, V any](slice []T, key func(T) K, value func(T) V) map[K][]V {
	result := make(map[K][]V)
	for _, v := range slice {
		k := key(v)
		result[k] = append(result[k], value(v))
	}
	return result
}

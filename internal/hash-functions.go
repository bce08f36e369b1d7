package internal

// BoolHash computes a hash value for the given bool.
func BoolHash(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// StringHash computes an FNV-1a hash value for the given string.
func StringHash(s string) (hash uint64) {
	hash = 14695981039346656037
	for i := 0; i < len(s); i++ {
		hash = (hash ^ uint64(s[i])) * 1099511628211
	}
	return hash
}

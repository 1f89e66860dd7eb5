package redis

// OptionKey returns the Redis key that stores a host option
func OptionKey(prefix, name string) string {
	return prefix + name
}

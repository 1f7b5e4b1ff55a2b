package redis

const (
	// KeyPrefixLock namespaces the Control Dispatcher's distributed
	// compose/restart locks.
	KeyPrefixLock = "monitor:lock:"
	// KeyPrefixAlertDedup namespaces the Alert Engine's distributed
	// per-service-per-kind dedup markers.
	KeyPrefixAlertDedup = "monitor:alertdedup:"
)

// LockKey returns the Redis key for a named distributed lock.
func LockKey(name string) string {
	return KeyPrefixLock + name
}

// AlertDedupKey returns the Redis key for one service/kind dedup marker.
func AlertDedupKey(serviceID, kind string) string {
	return KeyPrefixAlertDedup + serviceID + ":" + kind
}

package thinrsbus

// StreamKey returns the queue stream key: "{namespace}:{topic}"
func StreamKey(namespace, topic string) string {
	return namespace + ":" + topic
}

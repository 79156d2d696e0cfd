package messages

// Topic sentinels They are single bytes chosen so that a prefix
// subscription to "<type><End>" never matches a "<type><Delim>"-prefixed
// addressed topic: End cannot appear as the first byte of an address, and
// Delim cannot appear in a message_type string.
const (
	delim byte = 0x1f // ASCII unit separator
	end   byte = 0x1e // ASCII record separator
)

// Topic encodes a pub topic for a broadcast (unaddressed) message: the
// "<message_type><END>" form.
func Topic(messageType string) string {
	return messageType + string(end)
}

// AddressedTopic encodes a pub topic targeted at one service id or service
// type: the "<message_type><DELIM><target><END>" form.
func AddressedTopic(messageType, target string) string {
	return messageType + string(delim) + target + string(end)
}

// TopicPrefix returns the subscription prefix matching only the broadcast
// (unaddressed) messages of a type; addressed messages of that type need a
// separate TopicPrefixAddressed subscription.
func TopicPrefix(messageType string) string {
	return messageType + string(end)
}

// TopicPrefixAddressed returns the subscription prefix matching only
// messages of a type addressed to target.
func TopicPrefixAddressed(messageType, target string) string {
	return messageType + string(delim) + target + string(end)
}

package chat

// usernamePrefix is the fixed prefix of derived usernames.
const usernamePrefix = "user"

// DeriveUsername builds the default username from the trailing digits of
// a phone number: "+10000001234" becomes "user1234". The derivation is
// deterministic, so two phones sharing a suffix derive the same username;
// the store's uniqueness constraint turns that into a Conflict instead of
// silently registering a second account under the name.
func DeriveUsername(phone string) string {
	suffix := phone
	if len(phone) > 4 {
		suffix = phone[len(phone)-4:]
	}
	return usernamePrefix + suffix
}

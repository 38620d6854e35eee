package composer

import (
	"strings"
	"unicode/utf8"
)

// emojiReplacer swaps emoji that older WhatsApp clients garble for plain
// text. Every replacement is ASCII or empty, and the joiner and variation
// selector are removed outright, so a second pass finds nothing to replace.
var emojiReplacer = strings.NewReplacer(
	"\U0001F6CD\uFE0F", "*", // shopping bags + VS16
	"\u2764\uFE0F", "<3", // red heart + VS16
	"\U0001F6CD", "*",
	"\U0001F6D2", "*", // shopping cart
	"\U0001F4E6", "*", // package
	"\U0001F69A", "-", // delivery truck
	"\U0001F4B5", "$", // banknote
	"\U0001F4B0", "$", // money bag
	"\U0001F4B3", "$", // credit card
	"\U0001F4CD", "-", // pin
	"\U0001F4DD", "-", // memo
	"\U0001F4DE", "Tel:", // receiver
	"\U0001F44B", "", // waving hand
	"\u2705", "OK", // check mark
	"\u200D", "", // zero width joiner
	"\uFE0F", "", // variation selector-16
)

// ValidateMessage reports whether message can be sent as is: valid UTF-8, no
// replacement characters left over from an earlier bad decode, and at most
// MaxMessageLength characters.
func ValidateMessage(message string) bool {
	if !utf8.ValidString(message) {
		return false
	}
	if strings.ContainsRune(message, utf8.RuneError) {
		return false
	}
	return utf8.RuneCountInString(message) <= MaxMessageLength
}

// SanitizeMessage drops invalid bytes, replaces problematic emoji and strips
// replacement characters. SanitizeMessage(SanitizeMessage(m)) equals
// SanitizeMessage(m). Length is not adjusted.
func SanitizeMessage(message string) string {
	message = strings.ToValidUTF8(message, "")
	message = emojiReplacer.Replace(message)
	return strings.ReplaceAll(message, string(utf8.RuneError), "")
}

package transport

import "strings"

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ")

// EncodeMessage prepares text for the chat wire. The server treats a newline
// as the end of a message, so embedded newlines become single spaces and the
// message is closed with MessageTerminator.
func EncodeMessage(text string) []byte {
	return []byte(newlineReplacer.Replace(text) + MessageTerminator)
}

// SanitizeLine is EncodeMessage without the terminator.
func SanitizeLine(text string) string {
	return newlineReplacer.Replace(text)
}

// Package reasoner talks to a chat-completions reasoning API. It is the only
// place that knows the wire format; stages exchange plain prompts and
// responses with it.
package reasoner

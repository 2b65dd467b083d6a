package prompts

const (
	// DefaultSystem is the voice agent's instruction set when the client
	// does not supply one.
	DefaultSystem = "You are a helpful voice AI assistant. Keep responses concise and conversational."

	// DefaultGreeting is spoken when a session opens, before any user speech.
	DefaultGreeting = "Hello! How can I help you today?"
)

// ForSession resolves the final system prompt for a session.
func ForSession(systemPrompt string) string {
	if systemPrompt != "" {
		return systemPrompt
	}
	return DefaultSystem
}

// Package processing turns a chat submission into the conversation sent to
// the completion backend and shapes the reply returned to the client.
package processing

// ChatRequest is one submission to the chat endpoint after form parsing.
// It lives for the duration of the request only.
type ChatRequest struct {
	// Message is the user's free-text query, passed through unmodified
	Message string

	// Profile holds the non-empty profile fields in submission order
	Profile Profile

	// Files describes the uploaded file parts in upload order. Only their
	// names reach the model.
	Files FileManifest
}

// ChatResponse is the JSON body returned by the chat endpoint.
type ChatResponse struct {
	// Response is the model's reply, verbatim. An empty completion yields "".
	Response string `json:"response"`

	// ProfileReceived is true iff at least one non-empty profile field was submitted
	ProfileReceived bool `json:"profile_received"`

	// FilesReceived is the number of uploaded file parts, including zero
	FilesReceived int `json:"files_received"`
}

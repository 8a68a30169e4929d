package ws

// clientFrame is a frame received from the browser.
type clientFrame struct {
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	Remember bool   `json:"remember,omitempty"`
}

// serverFrame is a frame sent to the browser. The user message is never
// echoed back; the frontend appends it locally.
type serverFrame struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

func connectedFrame() serverFrame {
	return serverFrame{Type: "connected", Message: "Connected to chat"}
}

func assistantFrame(content string) serverFrame {
	return serverFrame{Type: "message", Role: "assistant", Content: content}
}

func calendarUpdatedFrame() serverFrame {
	return serverFrame{Type: "calendar_updated"}
}

func errorFrame(message string) serverFrame {
	return serverFrame{Type: "error", Message: message}
}

func pongFrame() serverFrame {
	return serverFrame{Type: "pong"}
}

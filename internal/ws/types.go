package ws

// Message is a JSON frame sent to the browser.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type incomingMessage struct {
	Type string `json:"type"`
}

type eventPayload struct {
	Event string `json:"event"`
}

type sizePayload struct {
	Size int `json:"size"`
}

type textPayload struct {
	Text string `json:"text"`
}

type resultPayload struct {
	RequestText    string `json:"request_text"`
	ResponseText   string `json:"response_text"`
	MicrophoneMode string `json:"microphone_mode"`
	FollowOn       bool   `json:"follow_on"`
}

type audioFilePayload struct {
	Name string `json:"name"`
}

type failurePayload struct {
	Error    string `json:"error"`
	Protocol bool   `json:"protocol"`
}

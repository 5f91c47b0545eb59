package model

// StreamMessage is the content fragment inside a stream record.
type StreamMessage struct {
	Content string `json:"content"`
}

// StreamRecord is one newline-delimited JSON record of a streaming response.
// Only two shapes are recognized: {"done":true,...} ends the stream,
// {"message":{"content":...}} carries a delta. Anything else is dropped.
type StreamRecord struct {
	Done    bool           `json:"done"`
	Message *StreamMessage `json:"message"`
}

// CompletionResponse is the buffered (non-streaming) reply. The reply text is
// resolved via Message.Content, then Response, then the raw body.
type CompletionResponse struct {
	Message  *StreamMessage `json:"message"`
	Response string         `json:"response"`
}

// PublishResponse is the one-click publish result. Older backends send the
// CMS link in camel case.
type PublishResponse struct {
	UUID         string `json:"uuid"`
	CMSLink      string `json:"cms_link"`
	CMSLinkCamel string `json:"cmsLink"`
}

// Link returns whichever CMS link field the backend populated.
func (p *PublishResponse) Link() string {
	if p.CMSLink != "" {
		return p.CMSLink
	}
	return p.CMSLinkCamel
}

// ErrorDetail is the embedded detail object of a backend error body.
type ErrorDetail struct {
	Detail struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	} `json:"detail"`
}

// ChatEvent is one observable step of an in-flight chat call, emitted on the
// channel returned by Send/SendAnalysis and re-streamed to the UI as SSE.
type ChatEvent struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

const (
	EventDelta  = "delta"
	EventPolicy = "policy"
	EventError  = "error"
	EventDone   = "done"
)

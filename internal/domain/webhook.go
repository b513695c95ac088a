package domain

// Webhook event types emitted by the call/video provider.
const (
	EventCallSessionStarted     = "call.session_started"
	EventCallSessionEnded       = "call.session_ended"
	EventCallTranscriptionReady = "call.transcription_ready"
	EventMessageNew             = "message.new"
)

// WebhookEvent is the provider's discriminated webhook body. Only the fields
// the routed event type needs are ever populated; everything is optional so an
// unrecognized or structurally incomplete event still parses and no-ops.
type WebhookEvent struct {
	Type string `json:"type"`

	// call.session_started / call.session_ended
	Call *WebhookCall `json:"call,omitempty"`

	// call.transcription_ready
	CallCID           string                    `json:"call_cid,omitempty"`
	CallTranscription *WebhookCallTranscription `json:"call_transcription,omitempty"`

	// message.new
	User      *WebhookUser    `json:"user,omitempty"`
	ChannelID string          `json:"channel_id,omitempty"`
	Message   *WebhookMessage `json:"message,omitempty"`
}

// WebhookCall carries the provider call object; the meeting id travels in the
// call's custom data, set at provisioning time.
type WebhookCall struct {
	Custom WebhookCallCustom `json:"custom"`
}

type WebhookCallCustom struct {
	MeetingID string `json:"meetingId"`
}

type WebhookCallTranscription struct {
	URL string `json:"url"`
}

type WebhookUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type WebhookMessage struct {
	Text string `json:"text"`
}

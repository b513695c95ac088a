package domain

// TranscriptItem is one line of the provider's line-delimited JSON transcript.
// Speaker identifiers are raw provider ids; resolution against users and
// agents happens at read time, never at rest.
type TranscriptItem struct {
	SpeakerID string  `json:"speaker_id"`
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	StartTS   float64 `json:"start_ts"`
	StopTS    float64 `json:"stop_ts"`
}

// TranscriptSpeaker is a resolved speaker identity.
type TranscriptSpeaker struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// TranscriptEntry is a transcript line with its speaker resolved.
type TranscriptEntry struct {
	StartTS float64           `json:"start_ts"`
	Text    string            `json:"text"`
	User    TranscriptSpeaker `json:"user"`
}

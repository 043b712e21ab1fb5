package assistant

// Notification is a value delivered on a turn's notification channel. The
// set of implementations is closed.
type Notification interface {
	notification()
}

// EventNotification reports a server event such as END_OF_UTTERANCE.
type EventNotification struct {
	Type EventType
}

// AudioChunkNotification reports that Size bytes of synthesized audio were
// appended to the turn's audio sink.
type AudioChunkNotification struct {
	Size int
}

// TextNotification carries the recognized spoken request text.
type TextNotification struct {
	Text string
}

// ResultNotification carries the full recognition result.
type ResultNotification struct {
	Result ConverseResult
}

// ErrorNotification carries a protocol-level error reported by the server.
// It is advisory; the terminal notification follows when the stream closes.
type ErrorNotification struct {
	Detail ErrorDetail
}

// AudioFileNotification carries the path of the finalized audio artifact.
type AudioFileNotification struct {
	Path string
}

// EndNotification is the terminal notification of a turn that ended cleanly.
type EndNotification struct{}

// FailureNotification is the terminal notification of a failed turn.
// Protocol is true when the turn failed because the server's last message
// was an error; Err then unwraps to *ErrorDetail.
type FailureNotification struct {
	Err      error
	Protocol bool
}

func (EventNotification) notification()      {}
func (AudioChunkNotification) notification() {}
func (TextNotification) notification()       {}
func (ResultNotification) notification()     {}
func (ErrorNotification) notification()      {}
func (AudioFileNotification) notification()  {}
func (EndNotification) notification()        {}
func (FailureNotification) notification()    {}

// IsTerminal reports whether n is the last notification of a turn.
func IsTerminal(n Notification) bool {
	switch n.(type) {
	case EndNotification, FailureNotification:
		return true
	default:
		return false
	}
}

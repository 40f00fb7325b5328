package mousai

import (
	"fmt"
	"time"
)

// ExternalLink points at the song on a streaming provider.
type ExternalLink struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// Song is a recognized track. SongLink identifies it.
type Song struct {
	Title         string         `json:"title"`
	Artist        string         `json:"artist"`
	SongLink      string         `json:"song_link"`
	PreviewURL    string         `json:"preview_url,omitempty"`
	ArtworkURL    string         `json:"artwork_url,omitempty"`
	ExternalLinks []ExternalLink `json:"external_links,omitempty"`
	RecognizedAt  time.Time      `json:"recognized_at"`
}

func (s Song) String() string {
	return fmt.Sprintf("%s by %s", s.Title, s.Artist)
}

// ResultKind is the outcome of a recognition attempt.
type ResultKind int

const (
	Matched ResultKind = iota
	NoMatch
	Failed
)

func (k ResultKind) String() string {
	switch k {
	case Matched:
		return "matched"
	case NoMatch:
		return "no_match"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrorKind classifies a Failed result.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorInvalidToken
	ErrorLimitReached
	ErrorFingerprint
	ErrorTransport
	ErrorMalformed
	ErrorOther
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorInvalidToken:
		return "invalid_token"
	case ErrorLimitReached:
		return "limit_reached"
	case ErrorFingerprint:
		return "fingerprint"
	case ErrorTransport:
		return "transport"
	case ErrorMalformed:
		return "malformed"
	default:
		return "other"
	}
}

// ClassifyErrorCode maps an AudD error code to an ErrorKind.
func ClassifyErrorCode(code int) ErrorKind {
	switch code {
	case 900:
		return ErrorInvalidToken
	case 901:
		return ErrorLimitReached
	case 300:
		return ErrorFingerprint
	default:
		return ErrorOther
	}
}

// RecognitionResult is what a Recognizer returns. Song is set only for
// Matched; Reason, Code and ErrorKind only for Failed.
type RecognitionResult struct {
	Kind      ResultKind
	Song      *Song
	Reason    string
	Code      int
	ErrorKind ErrorKind
}

func MatchedResult(song Song) RecognitionResult {
	return RecognitionResult{Kind: Matched, Song: &song}
}

func NoMatchResult() RecognitionResult {
	return RecognitionResult{Kind: NoMatch}
}

func FailedResult(reason string, kind ErrorKind) RecognitionResult {
	return RecognitionResult{Kind: Failed, Reason: reason, ErrorKind: kind}
}

// TransportFailure is the result for a request that never produced a usable response.
func TransportFailure(err error) RecognitionResult {
	return FailedResult("Connection Error: "+err.Error(), ErrorTransport)
}

// State is the controller's session state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NoticeKind is the severity of a Notice.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeWarning
	NoticeError
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeInfo:
		return "info"
	case NoticeWarning:
		return "warning"
	default:
		return "error"
	}
}

// Notice is a non-blocking message for the user.
type Notice struct {
	Kind    NoticeKind
	Title   string
	Message string
}

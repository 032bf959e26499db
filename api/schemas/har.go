package schemas

import (
	"time"
)

// -- HAR (HTTP Archive) Schemas --

// HAR is the root object of an HTTP Archive export of the network log.
// Only the subset of HAR 1.2 that the network log records is modelled;
// bodies are never captured.
type HAR struct {
	Log HARLog `json:"log"`
}

// HARLog holds the creator metadata and the recorded entries.
type HARLog struct {
	Version string  `json:"version"`
	Creator Creator `json:"creator"`
	Entries []Entry `json:"entries"`
}

// Creator identifies the tool that produced the archive.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Entry is one request/response pair.
type Entry struct {
	StartedDateTime time.Time `json:"startedDateTime"`
	Time            float64   `json:"time"` // Total elapsed milliseconds.
	Request         Request   `json:"request"`
	Response        Response  `json:"response"`
	// ResourceType is the CDP resource type (Document, XHR, Fetch, ...).
	ResourceType string `json:"_resourceType,omitempty"`
	Failed       bool   `json:"_failed,omitempty"`
}

// Request is the request half of an entry.
type Request struct {
	Method      string   `json:"method"`
	URL         string   `json:"url"`
	HTTPVersion string   `json:"httpVersion"`
	Headers     []NVPair `json:"headers"`
	QueryString []NVPair `json:"queryString"`
}

// Response is the response half of an entry.
type Response struct {
	Status      int      `json:"status"`
	StatusText  string   `json:"statusText"`
	HTTPVersion string   `json:"httpVersion"`
	Headers     []NVPair `json:"headers"`
	Content     Content  `json:"content"`
	RedirectURL string   `json:"redirectURL"`
}

// NVPair is a name/value pair used for headers and query strings.
type NVPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Content describes a response body without carrying it.
type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// NewHAR returns an empty archive with creator information filled in.
func NewHAR(creatorVersion string) *HAR {
	return &HAR{
		Log: HARLog{
			Version: "1.2",
			Creator: Creator{
				Name:    "actionwatch",
				Version: creatorVersion,
			},
			Entries: make([]Entry, 0),
		},
	}
}

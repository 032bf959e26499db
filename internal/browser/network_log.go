// internal/browser/network_log.go
package browser

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/actionwatch/api/schemas"
)

// requestState follows one leg of a request. Redirects open a new leg under
// the same request ID.
type requestState struct {
	request      *network.Request
	response     *network.Response
	resourceType network.ResourceType
	wallStart    *cdp.TimeSinceEpoch
	monoStart    *cdp.MonotonicTime
	monoEnd      *cdp.MonotonicTime
	complete     bool
	failed       bool
}

// NetworkLog records network traffic for one tab. It tracks in-flight
// requests for quiescence checks and exports completed traffic as HAR.
// Bodies are never fetched.
type NetworkLog struct {
	logger *zap.Logger
	// sometimes rations the per-request debug line.
	sometimes rate.Sometimes

	mu       sync.RWMutex
	current  map[network.RequestID]*requestState
	legs     []*requestState
	inflight map[network.RequestID]struct{}
}

// NewNetworkLog returns an empty log.
func NewNetworkLog(logger *zap.Logger) *NetworkLog {
	return &NetworkLog{
		logger:    logger.Named("network_log"),
		sometimes: rate.Sometimes{First: 10, Interval: time.Second},
		current:   make(map[network.RequestID]*requestState),
		inflight:  make(map[network.RequestID]struct{}),
	}
}

// Handle consumes ev if it is a network event and reports whether it did.
func (n *NetworkLog) Handle(ev interface{}) bool {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		n.onRequestWillBeSent(e)
	case *network.EventResponseReceived:
		n.onResponseReceived(e)
	case *network.EventLoadingFinished:
		n.onLoadingFinished(e)
	case *network.EventLoadingFailed:
		n.onLoadingFailed(e)
	default:
		return false
	}
	return true
}

// InflightRequests reports requests started but neither finished nor failed.
func (n *NetworkLog) InflightRequests() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.inflight)
}

// Method returns the HTTP method of the current leg of id, or "".
func (n *NetworkLog) Method(id network.RequestID) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if st, ok := n.current[id]; ok && st.request != nil {
		return st.request.Method
	}
	return ""
}

func (n *NetworkLog) onRequestWillBeSent(e *network.EventRequestWillBeSent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.inflight[e.RequestID] = struct{}{}

	if e.RedirectResponse != nil {
		if prev, ok := n.current[e.RequestID]; ok && !prev.complete {
			prev.response = e.RedirectResponse
			prev.monoEnd = e.Timestamp
			prev.complete = true
		}
	}

	st := &requestState{
		request:      e.Request,
		resourceType: e.Type,
		wallStart:    e.WallTime,
		monoStart:    e.Timestamp,
	}
	n.current[e.RequestID] = st
	n.legs = append(n.legs, st)

	if e.Request != nil {
		n.sometimes.Do(func() {
			n.logger.Debug("Request started.", zap.String("method", e.Request.Method), zap.String("url", e.Request.URL))
		})
	}
}

func (n *NetworkLog) onResponseReceived(e *network.EventResponseReceived) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if st, ok := n.current[e.RequestID]; ok {
		st.response = e.Response
		if st.resourceType == "" {
			st.resourceType = e.Type
		}
	}
}

func (n *NetworkLog) onLoadingFinished(e *network.EventLoadingFinished) {
	n.finish(e.RequestID, e.Timestamp, false)
}

func (n *NetworkLog) onLoadingFailed(e *network.EventLoadingFailed) {
	n.finish(e.RequestID, e.Timestamp, true)
}

func (n *NetworkLog) finish(id network.RequestID, ts *cdp.MonotonicTime, failed bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.inflight, id)
	if st, ok := n.current[id]; ok {
		st.monoEnd = ts
		st.complete = true
		st.failed = failed
	}
}

// HAR builds an archive of every completed leg, ordered by start time.
func (n *NetworkLog) HAR(creatorVersion string) *schemas.HAR {
	n.mu.RLock()
	defer n.mu.RUnlock()

	har := schemas.NewHAR(creatorVersion)
	for _, st := range n.legs {
		if !st.complete || st.request == nil {
			continue
		}
		var started time.Time
		if st.wallStart != nil {
			started = st.wallStart.Time()
		}
		elapsed := float64(0)
		if st.monoStart != nil && st.monoEnd != nil {
			elapsed = float64(st.monoEnd.Time().Sub(st.monoStart.Time())) / float64(time.Millisecond)
		}
		har.Log.Entries = append(har.Log.Entries, schemas.Entry{
			StartedDateTime: started,
			Time:            elapsed,
			Request:         convertRequest(st.request),
			Response:        convertResponse(st.response),
			ResourceType:    string(st.resourceType),
			Failed:          st.failed,
		})
	}

	sort.SliceStable(har.Log.Entries, func(i, j int) bool {
		return har.Log.Entries[i].StartedDateTime.Before(har.Log.Entries[j].StartedDateTime)
	})
	return har
}

func convertRequest(req *network.Request) schemas.Request {
	return schemas.Request{
		Method:      req.Method,
		URL:         req.URL,
		HTTPVersion: "HTTP/1.1",
		Headers:     convertHeaders(req.Headers),
		QueryString: convertQueryString(req.URL),
	}
}

func convertResponse(resp *network.Response) schemas.Response {
	if resp == nil {
		return schemas.Response{StatusText: "Failed (No Response)", Headers: []schemas.NVPair{}}
	}
	return schemas.Response{
		Status:      int(resp.Status),
		StatusText:  resp.StatusText,
		HTTPVersion: resp.Protocol,
		Headers:     convertHeaders(resp.Headers),
		Content: schemas.Content{
			Size:     int64(resp.EncodedDataLength),
			MimeType: resp.MimeType,
		},
		RedirectURL: getHeader(resp.Headers, "Location"),
	}
}

// getHeader is a case-insensitive lookup that returns the first value.
func getHeader(headers network.Headers, key string) string {
	for name, v := range headers {
		if strings.EqualFold(name, key) {
			if s, ok := v.(string); ok {
				return strings.Split(s, "\n")[0]
			}
		}
	}
	return ""
}

// convertHeaders flattens headers, splitting newline-joined values, sorted by name.
func convertHeaders(headers network.Headers) []schemas.NVPair {
	pairs := make([]schemas.NVPair, 0, len(headers))
	for name, value := range headers {
		s, ok := value.(string)
		if !ok {
			continue
		}
		for _, v := range strings.Split(s, "\n") {
			pairs = append(pairs, schemas.NVPair{Name: name, Value: v})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs
}

func convertQueryString(rawURL string) []schemas.NVPair {
	pairs := make([]schemas.NVPair, 0)
	u, err := url.Parse(rawURL)
	if err != nil {
		return pairs
	}
	query := u.Query()
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range query[name] {
			pairs = append(pairs, schemas.NVPair{Name: name, Value: v})
		}
	}
	return pairs
}

package gtmetrix

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Test lifecycle states as reported by the server. The server is the
// single source of truth: Fetch stores whatever it says, with no
// client-side ordering checks. completed and error are terminal.
const (
	StateUnknown   = ""
	StateQueued    = "queued"
	StateStarted   = "started"
	StateCompleted = "completed"
	StateError     = "error"
)

// Test tracks one remote page test by identifier. Its state and
// attributes change only through its own Fetch. Not safe for concurrent
// use.
type Test struct {
	client *Client

	id    string
	state string
	attrs map[string]interface{}
	links map[string]string

	report *Report
}

func newTest(c *Client, obj *apiObject) *Test {
	return &Test{
		client: c,
		id:     obj.ID,
		state:  obj.state(),
		attrs:  obj.Attributes,
		links:  obj.Links,
	}
}

func (t *Test) ID() string { return t.id }

// State returns the last state the server reported, or StateUnknown if
// the test has never been fetched.
func (t *Test) State() string { return t.state }

// Done reports whether the test reached a terminal state. Note that the
// error state is terminal but carries no report; check State, not just
// Done, before asking for one.
func (t *Test) Done() bool {
	return t.state == StateCompleted || t.state == StateError
}

// Attributes returns the raw attribute map from the last fetch, exactly
// as the server sent it.
func (t *Test) Attributes() map[string]interface{} { return t.attrs }

// Fetch refreshes the test from the server and returns the new state.
//
// The status endpoint of a completed test redirects to the report
// endpoint, whose body has a different shape, so the redirect is never
// followed. A 3xx body is used only when it still carries a test object;
// anything else leaves the stored state alone, which the polling loop
// reads as "not finished yet".
func (t *Test) Fetch() (string, error) {
	state, _, err := t.fetch()
	return state, err
}

func (t *Test) fetch() (string, time.Duration, error) {
	var resp apiResponse
	httpResp, err := t.client.request(http.MethodGet, "tests/"+t.id, nil, nil, &resp, false)
	if err != nil {
		return t.state, 0, err
	}
	delay := retryAfter(httpResp)
	if httpResp.StatusCode >= 300 {
		if obj, err := decodeTest(resp.Data); err == nil {
			t.update(obj)
		}
		return t.state, delay, nil
	}
	obj, err := decodeTest(resp.Data)
	if err != nil {
		return t.state, delay, err
	}
	t.update(obj)
	return t.state, delay, nil
}

func (t *Test) update(obj *apiObject) {
	t.id = obj.ID
	t.state = obj.state()
	t.attrs = obj.Attributes
	if obj.Links != nil {
		t.links = obj.Links
	}
}

// retryAfter reads the server's poll hint, the minimum wait before the
// next status request. Zero means no hint was given.
func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil {
		return 0
	}
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// WaitForCompletion polls Fetch until the test reaches a terminal state
// and returns that state. Between polls it waits for the server's
// Retry-After hint when one is given, otherwise the default interval.
// The context bounds the whole wait: give it a deadline or cancel it to
// stop polling, in which case the last observed state comes back along
// with ctx.Err().
func (t *Test) WaitForCompletion(ctx context.Context) (string, error) {
	for {
		state, delay, err := t.fetch()
		if err != nil {
			return state, err
		}
		if t.Done() {
			return state, nil
		}
		if delay == 0 {
			delay = t.client.pollInterval
		}
		t.client.l.Debugf("test not finished: id: %s, state: %s, next poll in %s", t.id, state, delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return state, ctx.Err()
		case <-timer.C:
		}
	}
}

// GetReport fetches the report of a completed test. While the test is in
// any other state it returns nil with no error: a queued, started or
// errored test simply has no report. The report is fetched once and
// reused on later calls.
func (t *Test) GetReport() (*Report, error) {
	if t.state != StateCompleted {
		return nil, nil
	}
	if t.report != nil {
		return t.report, nil
	}
	link := t.links["report"]
	if link == "" {
		link = "reports/" + t.id
	}
	report, err := t.client.reportFromURL(link)
	if err != nil {
		return nil, err
	}
	t.report = report
	return report, nil
}

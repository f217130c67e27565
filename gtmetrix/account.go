package gtmetrix

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// StartTest asks GTmetrix to test the given page and returns the new Test,
// normally in the queued state. Extra test parameters (report, adblock,
// location, browser and so on) go into options and are passed through
// as-is, the API is the source of truth for what is legal.
//
// StartTest does not wait for the test to finish, call
// Test.WaitForCompletion for that.
func (c *Client) StartTest(pageURL string, options map[string]interface{}) (*Test, error) {
	attrs := make(map[string]interface{}, len(options)+1)
	for k, v := range options {
		attrs[k] = v
	}
	attrs["url"] = pageURL
	p := startTestPayload{Data: startTestData{Type: "test", Attributes: attrs}}
	var resp apiResponse
	if _, err := c.request(http.MethodPost, "tests", p, nil, &resp, true); err != nil {
		return nil, err
	}
	obj, err := decodeTest(resp.Data)
	if err != nil {
		return nil, err
	}
	c.l.Debugf("test started: id: %s, state: %s", obj.ID, obj.state())
	return newTest(c, obj), nil
}

// TestFromID makes a Test for an already known identifier without touching
// the network. Its state stays StateUnknown until the first Fetch.
func (c *Client) TestFromID(id string) *Test {
	return &Test{client: c, id: id}
}

// ReportFromID fetches the report with the given slug directly, bypassing
// the test lifecycle.
func (c *Client) ReportFromID(id string) (*Report, error) {
	return c.reportFromURL("reports/" + id)
}

func (c *Client) reportFromURL(link string) (*Report, error) {
	var resp apiResponse
	if _, err := c.request(http.MethodGet, c.trimBase(link), nil, nil, &resp, true); err != nil {
		return nil, err
	}
	obj, err := decodeReport(resp.Data)
	if err != nil {
		return nil, err
	}
	return newReport(c, obj), nil
}

// ListTests returns the tests started within the API's recent window,
// already populated with their last known attributes, in the server's own
// order. sort may be "created", "started" or "finished", with a "-"
// prefix for descending; filter keys are field names optionally postfixed
// with :eq, :lt, :lte, :gt or :gte. Either may be empty.
func (c *Client) ListTests(sort string, filter map[string]string) ([]*Test, error) {
	q := make(map[string]string)
	if sort != "" {
		q["sort"] = sort
	}
	for k, v := range filter {
		q[fmt.Sprintf("filter[%s]", k)] = v
	}
	var resp apiResponse
	if _, err := c.request(http.MethodGet, "tests", nil, q, &resp, true); err != nil {
		return nil, err
	}
	var objs []apiObject
	if err := json.Unmarshal(resp.Data, &objs); err != nil {
		return nil, fmt.Errorf("gtmetrix: decoding test list: %w", err)
	}
	tests := make([]*Test, 0, len(objs))
	for i := range objs {
		if !objs[i].isTest() {
			return nil, fmt.Errorf("gtmetrix: test list contains a non-test object")
		}
		tests = append(tests, newTest(c, &objs[i]))
	}
	return tests, nil
}

// Status returns the account attributes: api_credits left and the
// api_refill timestamp.
func (c *Client) Status() (map[string]interface{}, error) {
	var resp apiResponse
	if _, err := c.request(http.MethodGet, "status", nil, nil, &resp, true); err != nil {
		return nil, err
	}
	var obj apiObject
	if err := json.Unmarshal(resp.Data, &obj); err != nil {
		return nil, fmt.Errorf("gtmetrix: decoding status: %w", err)
	}
	if !obj.isUser() {
		return nil, fmt.Errorf("gtmetrix: response data is not a user object")
	}
	return obj.Attributes, nil
}

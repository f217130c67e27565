package gtmetrix

import (
	"encoding/json"
	"fmt"
)

// apiResponse is the JSON:API-style envelope every endpoint answers with:
// {"data": {...}} on success, {"errors": [...]} on failure.
type apiResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []APIError      `json:"errors"`
}

// apiObject is the common shape of test, report and user objects inside
// the envelope.
type apiObject struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Attributes map[string]interface{} `json:"attributes"`
	Links      map[string]string      `json:"links,omitempty"`
}

func (o *apiObject) state() string {
	s, _ := o.Attributes["state"].(string)
	return s
}

func (o *apiObject) isTest() bool {
	return o.Type == "test" && o.ID != "" && o.Attributes != nil
}

func (o *apiObject) isReport() bool {
	return o.Type == "report" && o.ID != "" && o.Attributes != nil && o.Links != nil
}

func (o *apiObject) isUser() bool {
	if o.Type != "user" || o.ID == "" || o.Attributes == nil {
		return false
	}
	_, ok := o.Attributes["api_credits"]
	return ok
}

type startTestPayload struct {
	Data startTestData `json:"data"`
}

type startTestData struct {
	Type       string                 `json:"type"`
	Attributes map[string]interface{} `json:"attributes"`
}

func decodeTest(raw json.RawMessage) (*apiObject, error) {
	var obj apiObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("gtmetrix: decoding test object: %w", err)
	}
	if !obj.isTest() {
		return nil, fmt.Errorf("gtmetrix: response data is not a test object")
	}
	return &obj, nil
}

func decodeReport(raw json.RawMessage) (*apiObject, error) {
	var obj apiObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("gtmetrix: decoding report object: %w", err)
	}
	if !obj.isReport() {
		return nil, fmt.Errorf("gtmetrix: response data is not a report object")
	}
	return &obj, nil
}

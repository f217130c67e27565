package gtmetrix

import (
	"io"
	"net/http"
	"net/url"
	"os"
)

// Report wraps the final result payload of a completed test. It is
// read-only: the attribute map is exposed exactly as the server returned
// it, no schema is enforced. Resource bytes are fetched per call and
// never cached.
type Report struct {
	client *Client

	id    string
	attrs map[string]interface{}
	links map[string]string
}

func newReport(c *Client, obj *apiObject) *Report {
	return &Report{client: c, id: obj.ID, attrs: obj.Attributes, links: obj.Links}
}

func (r *Report) ID() string { return r.id }

// Attributes returns the raw report body for full traversal.
func (r *Report) Attributes() map[string]interface{} { return r.attrs }

// Links returns the report's resource link map (report_pdf, screenshot,
// video and so on).
func (r *Report) Links() map[string]string { return r.links }

// resolveResource maps a resource name to its download URL. A name
// matching an entry of the report wins: links first, then a top-level
// attribute holding a URL string or an object with a url/href field.
// Otherwise the name must itself be an absolute http(s) URL.
func (r *Report) resolveResource(name string) (string, error) {
	if u, ok := r.links[name]; ok && u != "" {
		return u, nil
	}
	switch v := r.attrs[name].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case map[string]interface{}:
		if u, ok := v["url"].(string); ok && u != "" {
			return u, nil
		}
		if u, ok := v["href"].(string); ok && u != "" {
			return u, nil
		}
	}
	if u, err := url.Parse(name); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return name, nil
	}
	return "", &ResourceNotFoundError{Name: name}
}

// GetResource downloads a named report resource and streams its bytes
// into dst. name may also be a literal URL; a name that is neither a
// resource entry nor a URL fails with *ResourceNotFoundError before any
// request is made.
func (r *Report) GetResource(name string, dst io.Writer) error {
	u, err := r.resolveResource(name)
	if err != nil {
		return err
	}
	r.client.l.Debugf("downloading resource: report: %s, name: %s", r.id, name)
	return r.client.download(u, dst)
}

// GetResourceFile downloads a named resource into the file at path. The
// file handle is released on every path out of here, error included.
func (r *Report) GetResourceFile(name, path string) (err error) {
	u, err := r.resolveResource(name)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	err = r.client.download(u, f)
	return err
}

// Delete removes the report from GTmetrix. Every other call on this
// report answers 404 afterwards.
func (r *Report) Delete() error {
	_, err := r.client.request(http.MethodDelete, "reports/"+r.id, nil, nil, nil, true)
	return err
}

// Retest runs the same page again and returns the new Test.
func (r *Report) Retest() (*Test, error) {
	var resp apiResponse
	if _, err := r.client.request(http.MethodPost, "reports/"+r.id+"/retest", nil, nil, &resp, true); err != nil {
		return nil, err
	}
	obj, err := decodeTest(resp.Data)
	if err != nil {
		return nil, err
	}
	return newTest(r.client, obj), nil
}

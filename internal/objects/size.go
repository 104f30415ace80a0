package objects

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grussorusso/digestledge/utils"
)

// RemoteLookupFailure reports a failed size lookup.
type RemoteLookupFailure struct {
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *RemoteLookupFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retrieving the size with url %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("retrieving the size with url %s failed with status %d and content %q", e.URL, e.Status, e.Body)
}

func (e *RemoteLookupFailure) Unwrap() error { return e.Err }

// SizeProbe asks the object metadata service for the size of stored objects.
type SizeProbe struct {
	baseUrl string
	client  *http.Client
}

// NewSizeProbe returns a probe querying {baseUrl}/objects/{key}?metadata=size.
func NewSizeProbe(baseUrl string, client *http.Client) *SizeProbe {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SizeProbe{baseUrl: strings.TrimRight(baseUrl, "/"), client: client}
}

// FetchSize returns the size in bytes of the object stored under objectKey. It does
// not retry.
func (p *SizeProbe) FetchSize(objectKey string) (int64, error) {
	fetchSizeUrl := p.baseUrl + "/objects/" + url.QueryEscape(objectKey) + "?metadata=size"

	resp, err := p.client.Get(fetchSizeUrl)
	if err != nil {
		return 0, &RemoteLookupFailure{URL: fetchSizeUrl, Err: err}
	}
	body := utils.ReadBody(resp, 4096)
	if resp.StatusCode != http.StatusOK {
		return 0, &RemoteLookupFailure{URL: fetchSizeUrl, Status: resp.StatusCode, Body: body}
	}

	size, err := strconv.ParseInt(strings.TrimSpace(body), 10, 64)
	if err != nil || size < 0 {
		if err == nil {
			err = fmt.Errorf("negative size %d", size)
		}
		return 0, &RemoteLookupFailure{URL: fetchSizeUrl, Status: resp.StatusCode, Body: body, Err: err}
	}
	return size, nil
}

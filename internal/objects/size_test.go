package objects

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grussorusso/digestledge/utils"
)

func TestFetchSize(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, "5000\n")
	}))
	defer srv.Close()

	size, err := NewSizeProbe(srv.URL+"/ds/", nil).FetchSize("dir/a b.bin")
	utils.AssertNil(t, err)
	utils.AssertEquals(t, int64(5000), size)
	utils.AssertEquals(t, "/ds/objects/dir%2Fa+b.bin", gotPath)
	utils.AssertEquals(t, "metadata=size", gotQuery)
}

func TestFetchSizeNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "no such object")
	}))
	defer srv.Close()

	_, err := NewSizeProbe(srv.URL, nil).FetchSize("missing")
	var failure *RemoteLookupFailure
	utils.AssertTrue(t, errors.As(err, &failure))
	utils.AssertEquals(t, http.StatusNotFound, failure.Status)
	utils.AssertEquals(t, "no such object", failure.Body)
	utils.AssertEquals(t, srv.URL+"/objects/missing?metadata=size", failure.URL)
}

func TestFetchSizeMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "large")
	}))
	defer srv.Close()

	_, err := NewSizeProbe(srv.URL, nil).FetchSize("k")
	var failure *RemoteLookupFailure
	utils.AssertTrue(t, errors.As(err, &failure))
	utils.AssertEquals(t, http.StatusOK, failure.Status)
	utils.AssertNonNil(t, failure.Err)
}

func TestFetchSizeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewSizeProbe(srv.URL, nil).FetchSize("k")
	var failure *RemoteLookupFailure
	utils.AssertTrue(t, errors.As(err, &failure))
	utils.AssertEquals(t, 0, failure.Status)
}

package testutil

import (
	"net/http"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// NewVCRRecorder opens the cassette at path (without the .yaml suffix) in
// mode. Interactions match on method and URL only, so a cassette must not
// hold two requests with the same method and URL. The returned stop
// function saves a recording; call it before replaying the same cassette.
func NewVCRRecorder(t *testing.T, path string, mode recorder.Mode) (*recorder.Recorder, func()) {
	t.Helper()

	r, err := recorder.NewAsMode(path, mode, nil)
	if err != nil {
		t.Fatalf("Failed to create VCR recorder: %v", err)
	}

	// Don't match on request body for simplicity
	r.SetMatcher(func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method && r.URL.String() == i.URL
	})

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		if err := r.Stop(); err != nil {
			t.Errorf("Failed to stop VCR recorder: %v", err)
		}
	}
	t.Cleanup(stop)

	return r, stop
}

// VCRHTTPClient returns an HTTP client configured to use the VCR recorder
func VCRHTTPClient(r *recorder.Recorder) *http.Client {
	return &http.Client{
		Transport: r,
	}
}

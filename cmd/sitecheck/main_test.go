package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// executeCmd runs the CLI with args and returns the exit code and the
// captured output streams.
func executeCmd(t *testing.T, stdin io.Reader, args ...string) (code int, stdout, stderr string) {
	t.Helper()

	if stdin == nil {
		stdin = strings.NewReader("")
	}
	var out, errOut bytes.Buffer
	code = execute(args, stdin, &out, &errOut)
	return code, out.String(), errOut.String()
}

// newTargetServer serves 200 on /ok, 503 on /down and 404 elsewhere.
func newTargetServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// closedURL returns a URL nothing listens on.
func closedURL(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestVersion(t *testing.T) {
	code, stdout, _ := executeCmd(t, nil, "version")
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}

	for _, phrase := range []string{"sitecheck dev", "commit: none", "built:  unknown"} {
		if !strings.Contains(stdout, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, stdout)
		}
	}
}

func TestUnknownFlag_IsUsageError(t *testing.T) {
	code, _, stderr := executeCmd(t, nil, "check", "--no-such-flag")
	if code != exitUsage {
		t.Fatalf("exit code = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr, usageLine) {
		t.Errorf("stderr missing usage line\nGot: %s", stderr)
	}
}

func TestUnknownCommand_IsError(t *testing.T) {
	code, _, stderr := executeCmd(t, nil, "frobnicate")
	if code != exitError {
		t.Fatalf("exit code = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr, "Error:") {
		t.Errorf("stderr = %q, want an error message", stderr)
	}
}

// newHeaderServer reports the User-Agent and X-Probe headers of the first
// request it receives.
func newHeaderServer(t *testing.T, seen chan<- [2]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case seen <- [2]string{r.Header.Get("User-Agent"), r.Header.Get("X-Probe")}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://dawaai.pk/all-medicines/a", "dawaai.pk"},
		{"standard https", "https://Dawaai.PK/medicine/x.html", "dawaai.pk"},
		{"no scheme", "dawaai.pk/path", "dawaai.pk"},
		{"host with port", "localhost:8080", "localhost"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchAttemptsTotal == nil || recordsTotal == nil || imagesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetchAttempt(t *testing.T) {
	site := "fetch-metrics.test"
	before := testutil.ToFloat64(fetchAttemptsTotalFor(site, ResultFailure))

	ObserveFetchAttempt("https://"+site+"/all-medicines/a", ResultFailure, 0)
	ObserveFetchAttempt("https://"+site+"/all-medicines/a", ResultFailure, 0)
	ObserveFetchAttempt("https://"+site+"/all-medicines/a", ResultSuccess, 512)

	if got := testutil.ToFloat64(fetchAttemptsTotalFor(site, ResultFailure)) - before; got != 2 {
		t.Errorf("expected 2 failed attempts, got %f", got)
	}
	if got := testutil.ToFloat64(fetchBytesTotal.WithLabelValues(site)); got != 512 {
		t.Errorf("expected 512 bytes, got %f", got)
	}
}

func TestObserveRecordAndImage(t *testing.T) {
	ObserveRecord("metrics-test")
	ObserveImage("metrics-test")
	ObserveCandidates("metrics-test", 3)

	if got := testutil.ToFloat64(recordsTotal.WithLabelValues("metrics-test")); got != 1 {
		t.Errorf("expected record counter 1, got %f", got)
	}
	if got := testutil.ToFloat64(imagesTotal.WithLabelValues("metrics-test")); got != 1 {
		t.Errorf("expected image counter 1, got %f", got)
	}
	if got := testutil.ToFloat64(candidatesTotal.WithLabelValues("metrics-test")); got != 3 {
		t.Errorf("expected candidate counter 3, got %f", got)
	}
}

func fetchAttemptsTotalFor(site, result string) prometheus.Counter {
	Init()
	return fetchAttemptsTotal.WithLabelValues(site, result)
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://dawaai.pk", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}

func TestObserveRobotsFallback(t *testing.T) {
	Init()
	before := testutil.ToFloat64(robotsFallbackTotal.WithLabelValues("timeout"))

	ObserveRobotsFallback("timeout")

	if got := testutil.ToFloat64(robotsFallbackTotal.WithLabelValues("timeout")); got != before+1 {
		t.Fatalf("robots fallback counter = %v, want %v", got, before+1)
	}
}

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/prowl/netsafe"
)

// testFactory returns a Factory whose direct transport dials loopback, for
// use against httptest servers.
func testFactory() *Factory {
	return &Factory{direct: http.DefaultTransport}
}

func TestDoFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "landed")
	})

	client := testFactory().Client(5*time.Second, nil)
	req, _ := http.NewRequest("GET", srv.URL+"/a", nil)
	resp, err := Do(context.Background(), client, req, netsafe.MaxHTMLBody)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != "landed" {
		t.Fatalf("got %d %q", resp.StatusCode, resp.Body)
	}
	if resp.Redirects != 2 {
		t.Errorf("Redirects = %d, want 2", resp.Redirects)
	}
	if resp.CrossHost {
		t.Error("CrossHost = true for same-host chain")
	}
	if !strings.HasSuffix(resp.FinalURL, "/final") {
		t.Errorf("FinalURL = %q", resp.FinalURL)
	}
}

func TestRedirectCap(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	client := testFactory().Client(5*time.Second, nil)
	req, _ := http.NewRequest("GET", srv.URL+"/loop", nil)
	_, err := Do(context.Background(), client, req, netsafe.MaxHTMLBody)
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("err = %v, want ErrTooManyRedirects", err)
	}
}

func TestRedirectValidation(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/out", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://169.254.169.254/latest/meta-data/", http.StatusFound)
	})

	validate := func(rawURL string) error {
		if strings.Contains(rawURL, "169.254.169.254") {
			return netsafe.ErrSSRF
		}
		return nil
	}
	client := testFactory().Client(5*time.Second, validate)
	req, _ := http.NewRequest("GET", srv.URL+"/out", nil)
	_, err := Do(context.Background(), client, req, netsafe.MaxHTMLBody)
	if !errors.Is(err, netsafe.ErrSSRF) {
		t.Fatalf("err = %v, want ErrSSRF on redirect hop", err)
	}
}

func TestDoBodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 2048))
	}))
	defer srv.Close()

	client := testFactory().Client(5*time.Second, nil)
	req, _ := http.NewRequest("GET", srv.URL, nil)
	_, err := Do(context.Background(), client, req, 1024)
	if !errors.Is(err, netsafe.ErrBodyTooLarge) {
		t.Fatalf("err = %v, want ErrBodyTooLarge", err)
	}
}

func TestOnionUnrouted(t *testing.T) {
	f, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	client := f.Client(time.Second, nil)
	req, _ := http.NewRequest("GET", "http://expyuzz4wqqyqhjn.onion/", nil)
	_, doErr := Do(context.Background(), client, req, netsafe.MaxHTMLBody)
	if !errors.Is(doErr, ErrOnionUnrouted) {
		t.Fatalf("err = %v, want ErrOnionUnrouted", doErr)
	}
}

func TestNewWithSocks(t *testing.T) {
	f, err := New(Config{SocksAddr: "127.0.0.1:9050"})
	if err != nil {
		t.Fatal(err)
	}
	if f.onion == nil {
		t.Fatal("onion transport not built")
	}
}

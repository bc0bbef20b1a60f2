package httpclient

import (
	nethttp "net/http"
	"net/url"
	"testing"
)

// TestNewRejectsUnknownProxyMode verifies that a typo'd proxy mode fails fast
// instead of silently falling back to direct connections.
func TestNewRejectsUnknownProxyMode(t *testing.T) {
	_, err := New(ProxyOptions{Mode: "socks5"})
	if err == nil {
		t.Fatal("New() should return error for unsupported proxy mode")
	}
}

// TestNewBasicModeRequiresHost verifies basic mode without a host is rejected.
func TestNewBasicModeRequiresHost(t *testing.T) {
	_, err := New(ProxyOptions{Mode: "basic"})
	if err == nil {
		t.Fatal("New() should return error when basic proxy mode has no host")
	}
}

// TestNewDirectMode verifies the default mode produces a usable client with
// no proxy function installed.
func TestNewDirectMode(t *testing.T) {
	client, err := New(ProxyOptions{})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", client.Transport)
	}
	if tr.Proxy != nil {
		t.Error("direct mode should not install a proxy function")
	}
}

// TestBuildProxyURLDefaultsPort verifies the default proxy port is applied
// and credentials are only embedded when both parts are present.
func TestBuildProxyURLDefaultsPort(t *testing.T) {
	u := buildProxyURL(ProxyOptions{Host: "proxy.corp"})
	if u.Host != "proxy.corp:8080" {
		t.Errorf("buildProxyURL host = %s, want proxy.corp:8080", u.Host)
	}
	if u.User != nil {
		t.Error("no credentials should be embedded without user and password")
	}

	u2 := buildProxyURL(ProxyOptions{Host: "proxy.corp", Port: 3128, User: "u", Password: "p"})
	if u2.Host != "proxy.corp:3128" {
		t.Errorf("buildProxyURL host = %s, want proxy.corp:3128", u2.Host)
	}
	if u2.User == nil {
		t.Fatal("credentials should be embedded when user and password are set")
	}
}

// TestProxyFuncWithBypass verifies NoProxy entries bypass the proxy while
// other hosts are still proxied.
func TestProxyFuncWithBypass(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "exoscale.com")

	req, _ := nethttp.NewRequest("GET", "https://api-de-fra-1.exoscale.com/v2/iam-role", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected bypass for exoscale.com, got %v", result)
	}

	req2, _ := nethttp.NewRequest("GET", "https://api.scaleway.com/iam/v1alpha1/applications", nil)
	result2, err := proxyFunc(req2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result2 == nil || result2.Host != "proxy.corp:8080" {
		t.Errorf("expected scaleway traffic to be proxied, got %v", result2)
	}
}

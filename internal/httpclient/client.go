// Package httpclient builds the HTTP clients used for IAM API calls.
//
// All provider traffic goes through a proxy-aware base client wrapped with
// retry logic. Retries are conservative (see constants.RetryMax): creation
// calls are not idempotent on every backend.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/net/http2"

	"github.com/proprion/proprion/internal/constants"
	"github.com/proprion/proprion/internal/logging"
)

// ProxyOptions configures outbound proxying.
//
// Mode is one of:
//   - "" or "no-proxy": direct connections
//   - "system": honor HTTP_PROXY / HTTPS_PROXY / NO_PROXY
//   - "basic": explicit proxy with optional basic auth
//   - "ntlm": explicit proxy with NTLM negotiation
type ProxyOptions struct {
	Mode     string
	Host     string
	Port     int
	User     string
	Password string
	NoProxy  string
}

// New creates the base HTTP client with proxy support.
func New(opts ProxyOptions) (*nethttp.Client, error) {
	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout: constants.HTTPTLSHandshakeTimeout,
	}
	_ = http2.ConfigureTransport(transport)

	switch strings.ToLower(opts.Mode) {
	case "no-proxy", "":
		transport.Proxy = nil

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment

	case "basic":
		if opts.Host == "" {
			return nil, fmt.Errorf("proxy mode is basic but proxy host is empty")
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(opts), opts.NoProxy)

	case "ntlm":
		if opts.Host == "" {
			return nil, fmt.Errorf("proxy mode is ntlm but proxy host is empty")
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(opts), opts.NoProxy)
		// NTLM challenge/response happens per connection, so the negotiator
		// wraps the whole transport.
		return &nethttp.Client{
			Transport: ntlmssp.Negotiator{
				RoundTripper: transport,
			},
			Timeout: constants.HTTPRequestTimeout,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", opts.Mode)
	}

	return &nethttp.Client{
		Transport: transport,
		Timeout:   constants.HTTPRequestTimeout,
	}, nil
}

// NewRetryable wraps the base client with retry handling for transient
// network failures and 5xx responses.
func NewRetryable(opts ProxyOptions, logger *logging.Logger) (*nethttp.Client, error) {
	base, err := New(opts)
	if err != nil {
		return nil, err
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = base
	retryClient.RetryMax = constants.RetryMax
	retryClient.RetryWaitMin = constants.RetryWaitMin
	retryClient.RetryWaitMax = constants.RetryWaitMax
	retryClient.Logger = &retryLogger{logger: logger}

	return retryClient.StandardClient(), nil
}

// retryLogger adapts the zerolog wrapper to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(fieldMap(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(fieldMap(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(fieldMap(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(fieldMap(keysAndValues)).Msg(msg)
}

func fieldMap(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

// buildProxyURL constructs the proxy URL from options.
func buildProxyURL(opts ProxyOptions) *url.URL {
	port := opts.Port
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", opts.Host, port),
	}

	// Only embed credentials when both parts are present; an empty password
	// in the URL breaks auth with some proxies.
	if opts.User != "" && opts.Password != "" {
		proxyURL.User = url.UserPassword(opts.User, opts.Password)
	}

	return proxyURL
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy
// bypass list. With an empty list it behaves identically to nethttp.ProxyURL.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		return proxyFunc(req.URL)
	}
}

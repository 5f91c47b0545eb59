package utils

import (
	"crypto/tls"
	"net/http"
	"time"
)

// NewHTTPClient returns a client for buffered backend calls, bounded by the
// given overall timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: false,
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// NewStreamingHTTPClient returns a client for streaming calls. No overall
// timeout: a healthy stream may outlive any fixed deadline, so streams are
// bounded by cancellation and the response-header timeout instead.
func NewStreamingHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: false,
			},
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}
}

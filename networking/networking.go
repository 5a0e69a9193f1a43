package networking

import (
	"errors"
	"net"
	"net/http"
	"os"
	"time"
)

var (
	unsupportedMethod = errors.New("Unsupported method for protocol")

	proxyHandler = http.ProxyFromEnvironment
)

// Anything that can perform a request. Tests substitute their own.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type httpClientWrapper struct {
	http.Client
}

func (self httpClientWrapper) Do(req *http.Request) (*http.Response, error) {
	if req.URL != nil && req.URL.Scheme == "file" {
		return self.doFile(req)
	}
	return self.Client.Do(req)
}

// Tools mirrored to local disk or a network share are referenced
// with file:// urls.
func (self httpClientWrapper) doFile(
	req *http.Request) (*http.Response, error) {
	if req.Method != "GET" {
		return nil, unsupportedMethod
	}

	file, err := os.Open(req.URL.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &http.Response{
				Status:     "404 Not Found",
				StatusCode: http.StatusNotFound,
				Body:       http.NoBody,
				Request:    req,
			}, nil
		}
		return nil, err
	}

	content_length := int64(-1)
	stat, err := file.Stat()
	if err == nil {
		content_length = stat.Size()
	}

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Body:          file,
		ContentLength: content_length,
		Close:         true,
		Request:       req,
	}, nil
}

// The client used for all tool downloads. The timeout covers the
// whole transfer so it needs to be generous.
func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &httpClientWrapper{
		Client: http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: proxyHandler,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: time.Minute,
			},
		},
	}
}

package social

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"
)

// proxySettings routes outbound HTTP and websocket traffic through proxy-url.
// A nil proxy and a nil dial mean a direct connection.
type proxySettings struct {
	proxy func(*http.Request) (*url.URL, error)
	dial  func(ctx context.Context, network, addr string) (net.Conn, error)
}

// proxySettingsFor supports socks5, http and https proxy URLs.
func proxySettingsFor(raw string) (proxySettings, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return proxySettings{}, nil
	}
	proxyURL, errParse := url.Parse(raw)
	if errParse != nil {
		return proxySettings{}, fmt.Errorf("invalid proxy-url: %w", errParse)
	}

	switch proxyURL.Scheme {
	case "socks5":
		var proxyAuth *proxy.Auth
		if proxyURL.User != nil {
			username := proxyURL.User.Username()
			password, _ := proxyURL.User.Password()
			proxyAuth = &proxy.Auth{User: username, Password: password}
		}
		dialer, errSOCKS5 := proxy.SOCKS5("tcp", proxyURL.Host, proxyAuth, proxy.Direct)
		if errSOCKS5 != nil {
			return proxySettings{}, fmt.Errorf("create SOCKS5 dialer failed: %w", errSOCKS5)
		}
		dial := func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			dial = contextDialer.DialContext
		}
		return proxySettings{dial: dial}, nil
	case "http", "https":
		return proxySettings{proxy: http.ProxyURL(proxyURL)}, nil
	default:
		return proxySettings{}, fmt.Errorf("unsupported proxy scheme: %s", proxyURL.Scheme)
	}
}

package proxypool

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/acquisition-cli/internal/model"
)

var supportedProtocols = map[string]bool{
	"http":   true,
	"https":  true,
	"socks5": true,
}

// ParseEndpoint accepts "scheme://[user:pass@]host:port", a bare
// "host:port" (http assumed) or the provider list form
// "host:port:user:pass".
func ParseEndpoint(raw string) (model.Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.Endpoint{}, eris.New("proxypool: empty endpoint")
	}

	if !strings.Contains(raw, "://") {
		parts := strings.Split(raw, ":")
		switch len(parts) {
		case 2:
			raw = "http://" + raw
		case 4:
			raw = "http://" + url.UserPassword(parts[2], parts[3]).String() + "@" + parts[0] + ":" + parts[1]
		default:
			return model.Endpoint{}, eris.Errorf("proxypool: unrecognised endpoint %q", raw)
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return model.Endpoint{}, eris.Wrapf(err, "proxypool: parse %q", raw)
	}
	proto := strings.ToLower(u.Scheme)
	if !supportedProtocols[proto] {
		return model.Endpoint{}, eris.Errorf("proxypool: unsupported protocol %q", u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return model.Endpoint{}, eris.Errorf("proxypool: endpoint %q needs host and port", raw)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return model.Endpoint{}, eris.Errorf("proxypool: invalid port in %q", raw)
	}

	ep := model.Endpoint{
		Host:        u.Hostname(),
		Port:        port,
		Protocol:    proto,
		IsActive:    true,
		SuccessRate: 100,
	}
	if u.User != nil {
		ep.Username = u.User.Username()
		ep.Password, _ = u.User.Password()
	}
	return ep, nil
}

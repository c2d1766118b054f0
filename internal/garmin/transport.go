package garmin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sstent/gcexport/internal/ratelimit"
)

// Garmin blocks clients that don't look like a supported browser.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Endpoints holds the two hosts the exporter talks to. Tests point both at a
// local fixture server.
type Endpoints struct {
	SSOHost     string
	ConnectHost string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		SSOHost:     "https://sso.garmin.com",
		ConnectHost: "https://connect.garmin.com",
	}
}

// HTTPError is an unexpected response status from either host.
type HTTPError struct {
	Code int
	URL  string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d for %s", e.Code, e.URL)
}

// Session is one authenticated login: a cookie jar shared between a client
// that follows redirects transparently (ordinary API and download calls) and
// a bare client that does not (the login redirect walk). There is no global
// session state; every call threads through a Session value.
type Session struct {
	http     *resty.Client
	redirect *http.Client
	jar      http.CookieJar
	gate     *ratelimit.Gate
}

// NewSession builds an unauthenticated session. gate may be nil.
func NewSession(gate *ratelimit.Gate) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetHeader("User-Agent", userAgent)
	client.SetTimeout(30 * time.Second)

	return &Session{
		http: client,
		redirect: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		jar:  jar,
		gate: gate,
	}, nil
}

// Get issues a GET and classifies the result: 200 returns the body, 204
// returns an empty body (some download endpoints use it to mean "nothing to
// return"), anything else is an *HTTPError.
func (s *Session) Get(ctx context.Context, rawurl string, query url.Values) ([]byte, error) {
	res, err := s.GetResponse(ctx, rawurl, query)
	if err != nil {
		return nil, err
	}
	switch res.StatusCode() {
	case http.StatusOK:
		return res.Body(), nil
	case http.StatusNoContent:
		return []byte{}, nil
	default:
		return nil, &HTTPError{Code: res.StatusCode(), URL: res.Request.URL}
	}
}

// GetResponse issues a GET and returns the raw response without status
// classification. The authenticator uses this to inspect sentinel text in
// error pages.
func (s *Session) GetResponse(ctx context.Context, rawurl string, query url.Values) (*resty.Response, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	req := s.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	return req.Get(rawurl)
}

// PostForm posts form data and returns the raw response. Login failure is
// signalled by sentinel text in a 200 body, so no status classification
// happens here.
func (s *Session) PostForm(ctx context.Context, rawurl string, query url.Values, form map[string]string, headers map[string]string) (*resty.Response, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	req := s.http.R().SetContext(ctx).SetFormData(form)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	for k, v := range headers {
		req.SetHeader(k, v)
	}
	return req.Post(rawurl)
}

// RedirectStep issues a single GET without following redirects, accumulating
// any cookies into the shared jar. It returns the status code and the
// Location header, which may be relative.
func (s *Session) RedirectStep(ctx context.Context, rawurl string) (status int, location string, err error) {
	if err := s.wait(ctx); err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := s.redirect.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer res.Body.Close()
	return res.StatusCode, res.Header.Get("Location"), nil
}

// CookieValue returns the named cookie stored for rawurl, or "".
func (s *Session) CookieValue(rawurl, name string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}
	for _, c := range s.jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// hostKey names the rate-gate files for a host URL.
func hostKey(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil || u.Host == "" {
		return "default"
	}
	return u.Host
}

func (s *Session) wait(ctx context.Context) error {
	if s.gate == nil {
		return nil
	}
	return s.gate.Wait(ctx)
}

package garmin

import (
	"time"

	"github.com/sstent/gcexport/internal/ratelimit"
)

// DefaultPageSize is the largest chunk the activity search endpoint accepts;
// requests over the enforced maximum come back with a 400.
const DefaultPageSize = 100

// Client talks to Garmin Connect through one authenticated Session.
type Client struct {
	session  *Session
	ep       Endpoints
	pageSize int
}

// ClientOptions configures a Client. Zero values fall back to the production
// endpoints and the default page size.
type ClientOptions struct {
	Endpoints    Endpoints
	PageSize     int
	RateInterval time.Duration
	RateDir      string
}

// NewClient builds an unauthenticated client; call Login before anything
// else.
func NewClient(opts ClientOptions) (*Client, error) {
	ep := opts.Endpoints
	if ep.SSOHost == "" || ep.ConnectHost == "" {
		ep = DefaultEndpoints()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var gate *ratelimit.Gate
	if opts.RateInterval > 0 {
		gate = ratelimit.NewGate(opts.RateDir, hostKey(ep.ConnectHost), opts.RateInterval)
	}

	session, err := NewSession(gate)
	if err != nil {
		return nil, err
	}
	return &Client{session: session, ep: ep, pageSize: pageSize}, nil
}

// Session exposes the underlying session for the lookup tables.
func (c *Client) Session() *Session {
	return c.session
}

func (c *Client) signinURL() string {
	return c.ep.SSOHost + "/sso/signin"
}

func (c *Client) redeemURL() string {
	return c.ep.ConnectHost + "/modern"
}

func (c *Client) profileURL() string {
	return c.ep.ConnectHost + "/modern/currentuser-service/user/info"
}

func (c *Client) searchURL() string {
	return c.ep.ConnectHost + "/modern/proxy/activitylist-service/activities/search/activities"
}

func (c *Client) activityTypesURL() string {
	return c.ep.ConnectHost + "/modern/proxy/activity-service/activity/activityTypes"
}

func (c *Client) eventTypesURL() string {
	return c.ep.ConnectHost + "/modern/proxy/activity-service/activity/eventTypes"
}

func (c *Client) devicesURL() string {
	return c.ep.ConnectHost + "/modern/proxy/device-service/deviceregistration/devices"
}

func (c *Client) activityPropertiesURL() string {
	return c.ep.ConnectHost + "/modern/main/js/properties/activity_types/activity_types.properties"
}

func (c *Client) eventPropertiesURL() string {
	return c.ep.ConnectHost + "/modern/main/js/properties/event_types/event_types.properties"
}

package config

import (
	"path/filepath"
	"time"

	"github.com/kkyr/fig"

	"github.com/merhawi-21/video-meeting/internal/monitoring"
)

// EnvPrefix is prepended to environment variable overrides, e.g.
// VIDEO_MEETING_ADDR=:9000.
const EnvPrefix = "VIDEO_MEETING"

// DefaultSTUN is used when no ICE servers are configured.
const DefaultSTUN = "stun:stun.l.google.com:19302"

// ICEServer is one STUN/TURN entry of the static ICE configuration.
// No dynamic TURN credential issuance is supported.
type ICEServer struct {
	URLs       []string `fig:"urls"`
	Username   string   `fig:"username"`
	Credential string   `fig:"credential"`
}

// Relay configures the signaling relay process.
type Relay struct {
	Addr  string `fig:"addr" default:":8080"`
	Debug bool   `fig:"debug"`

	// SendBuffer bounds the per-connection outbound queue; a member
	// whose buffer is full misses that message instead of stalling
	// delivery to the rest of the room.
	SendBuffer int `fig:"send_buffer" default:"64"`

	Monitoring monitoring.Config `fig:"monitoring"`
}

// Client configures a meeting client process.
type Client struct {
	RelayURL string `fig:"relay_url" default:"ws://localhost:8080/ws"`
	Room     string `fig:"room"`
	Debug    bool   `fig:"debug"`

	ICEServers []ICEServer `fig:"ice_servers"`

	Quality  string `fig:"quality" default:"720p"`
	RecvOnly bool   `fig:"recv_only"`

	// SetupTimeout closes sessions stuck before an established
	// transport so churn cannot leak negotiation state.
	SetupTimeout time.Duration `fig:"setup_timeout" default:"30s"`

	// CandidateQueue caps how many early ICE candidates a session
	// buffers while waiting for the remote description.
	CandidateQueue int `fig:"candidate_queue" default:"64"`
}

// LoadRelay reads relay configuration from an optional YAML file plus
// VIDEO_MEETING_ environment overrides.
func LoadRelay(path string) (*Relay, error) {
	var c Relay
	if err := load(&c, path); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadClient reads client configuration the same way and fills in the
// default STUN server when none is given.
func LoadClient(path string) (*Client, error) {
	var c Client
	if err := load(&c, path); err != nil {
		return nil, err
	}
	if len(c.ICEServers) == 0 {
		c.ICEServers = []ICEServer{{URLs: []string{DefaultSTUN}}}
	}
	return &c, nil
}

func load(cfg any, path string) error {
	opts := []fig.Option{fig.UseEnv(EnvPrefix)}
	if path == "" {
		opts = append(opts, fig.IgnoreFile())
	} else {
		dir, file := filepath.Split(path)
		if dir == "" {
			dir = "."
		}
		opts = append(opts, fig.File(file), fig.Dirs(dir))
	}
	return fig.Load(cfg, opts...)
}

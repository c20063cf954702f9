package rtc

import (
	"encoding/json"
	"sync"

	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"

	"github.com/merhawi-21/video-meeting/internal/config"
	"github.com/merhawi-21/video-meeting/internal/logger"
)

// PionEngine implements Engine on top of pion/webrtc.
type PionEngine struct {
	api  *pion.API
	conf pion.Configuration
	log  *logger.Logger
}

func NewEngine(servers []config.ICEServer, log *logger.Logger) (*PionEngine, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, newError("register codecs", err)
	}

	i := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, newError("register interceptors", err)
	}

	settings := pion.SettingEngine{LoggerFactory: logger.NewPionLogger(log)}

	return &PionEngine{
		api:  pion.NewAPI(pion.WithMediaEngine(m), pion.WithInterceptorRegistry(i), pion.WithSettingEngine(settings)),
		conf: pion.Configuration{ICEServers: ICEServers(servers)},
		log:  log,
	}, nil
}

// ICEServers maps the static configuration onto pion's type.
func ICEServers(servers []config.ICEServer) []pion.ICEServer {
	out := make([]pion.ICEServer, 0, len(servers))
	for _, s := range servers {
		ice := pion.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		out = append(out, ice)
	}
	return out
}

func (e *PionEngine) NewConn(src Source) (Conn, error) {
	pc, err := e.api.NewPeerConnection(e.conf)
	if err != nil {
		return nil, newError("create peer connection", err)
	}

	if src != nil {
		ls, ok := src.(*localSource)
		if !ok {
			pc.Close()
			return nil, ErrForeignSource
		}
		if err := ls.attach(pc); err != nil {
			pc.Close()
			return nil, err
		}
	} else {
		// No local source: negotiate receive-only transceivers.
		for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
			if _, err := pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
				Direction: pion.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return nil, newError("add recvonly transceiver", err)
			}
		}
	}

	c := &pionConn{pc: pc}

	pc.OnICECandidate(func(cand *pion.ICECandidate) {
		if cand == nil {
			return
		}
		raw, err := json.Marshal(cand.ToJSON())
		if err != nil {
			return
		}
		if fn := c.candidateFn(); fn != nil {
			fn(raw)
		}
	})

	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		if fn := c.stateFn(); fn != nil {
			fn(mapState(s))
		}
	})

	pc.OnTrack(func(tr *pion.TrackRemote, _ *pion.RTPReceiver) {
		if fn := c.trackFn(); fn != nil {
			fn(RemoteTrack{ID: tr.ID(), Kind: tr.Kind().String()})
		}
	})

	return c, nil
}

func mapState(s pion.PeerConnectionState) TransportState {
	switch s {
	case pion.PeerConnectionStateNew:
		return TransportNew
	case pion.PeerConnectionStateConnecting:
		return TransportConnecting
	case pion.PeerConnectionStateConnected:
		return TransportConnected
	case pion.PeerConnectionStateDisconnected:
		return TransportDisconnected
	case pion.PeerConnectionStateFailed:
		return TransportFailed
	default:
		return TransportClosed
	}
}

// pionConn adapts a single pion.PeerConnection to the Conn interface.
type pionConn struct {
	pc *pion.PeerConnection

	mu          sync.RWMutex
	onCandidate func(json.RawMessage)
	onState     func(TransportState)
	onTrack     func(RemoteTrack)
}

func (c *pionConn) CreateOffer() (json.RawMessage, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, newError("create offer", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, newError("set local description", err)
	}
	return json.Marshal(c.pc.LocalDescription())
}

func (c *pionConn) CreateAnswer() (json.RawMessage, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, newError("create answer", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, newError("set local description", err)
	}
	return json.Marshal(c.pc.LocalDescription())
}

func (c *pionConn) SetRemoteDescription(sdp json.RawMessage) error {
	var desc pion.SessionDescription
	if err := json.Unmarshal(sdp, &desc); err != nil {
		return newError("parse remote description", err)
	}
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return newError("set remote description", err)
	}
	return nil
}

func (c *pionConn) AddCandidate(candidate json.RawMessage) error {
	var init pion.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return newError("parse ICE candidate", err)
	}
	if err := c.pc.AddICECandidate(init); err != nil {
		return newError("add ICE candidate", err)
	}
	return nil
}

func (c *pionConn) OnCandidate(fn func(json.RawMessage)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

func (c *pionConn) OnStateChange(fn func(TransportState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *pionConn) OnTrack(fn func(RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *pionConn) candidateFn() func(json.RawMessage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onCandidate
}

func (c *pionConn) stateFn() func(TransportState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onState
}

func (c *pionConn) trackFn() func(RemoteTrack) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onTrack
}

func (c *pionConn) Close() error { return c.pc.Close() }

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	pionsdp "github.com/pion/sdp/v3"
)

// sipUA is the minimal signalling layer described in SPEC_FULL.md §6:
// INVITE/ACK/BYE handling only, no dialog-layer media logic; it does not
// register with a registrar. It is
// grounded on the teacher's pkg/dialog/user_agent.go wiring
// (sipgo.NewUA/NewClient/NewServer/NewDialogServerCache, OnInvite/OnAck/
// OnBye registered against the dialog cache) and pkg/dialog.Dialog.Answer's
// shape for building the 200 OK (sip.NewResponseFromRequest + AppendHeader
// + tx.Respond), simplified to one active call at a time.
type sipUA struct {
	cfg gatewayConfig

	ua        *sipgo.UserAgent
	client    *sipgo.Client
	server    *sipgo.Server
	dialogSrv *sipgo.DialogServerCache

	rtpPool *rtpPortPool

	onCall func(*activeCall)
}

func newSIPUA(cfg gatewayConfig, pool *rtpPortPool, onCall func(*activeCall)) (*sipUA, error) {
	ua, err := sipgo.NewUA(sipgo.WithUserAgentHostname(cfg.domain))
	if err != nil {
		return nil, fmt.Errorf("gateway: create sip user agent: %w", err)
	}

	client, err := sipgo.NewClient(ua, sipgo.WithClientHostname(cfg.domain))
	if err != nil {
		return nil, fmt.Errorf("gateway: create sip client: %w", err)
	}

	server, err := sipgo.NewServer(ua)
	if err != nil {
		return nil, fmt.Errorf("gateway: create sip server: %w", err)
	}

	contactURI := sip.Uri{User: cfg.username, Host: hostOnly(cfg.listenAddr, cfg.domain)}
	contact := sip.ContactHeader{Address: contactURI}
	dialogSrv := sipgo.NewDialogServerCache(client, contact)

	s := &sipUA{
		cfg:       cfg,
		ua:        ua,
		client:    client,
		server:    server,
		dialogSrv: dialogSrv,
		rtpPool:   pool,
		onCall:    onCall,
	}
	s.registerHandlers()
	return s, nil
}

func (s *sipUA) registerHandlers() {
	s.server.OnInvite(s.handleInvite)
	s.server.OnAck(func(req *sip.Request, tx sip.ServerTransaction) {
		s.dialogSrv.ReadAck(req, tx)
	})
	s.server.OnBye(s.handleBye)
}

func (s *sipUA) ListenAndServe(ctx context.Context) error {
	slog.Info("sip ua listening", "addr", s.cfg.listenAddr)
	return s.server.ListenAndServe(ctx, "udp", s.cfg.listenAddr)
}

func (s *sipUA) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	if _, err := s.dialogSrv.ReadInvite(req, tx); err != nil {
		slog.Warn("gateway: rejecting malformed invite", "err", err)
		tx.Respond(sip.NewResponseFromRequest(req, 400, "Bad Request", nil))
		return
	}
	dialogID, _ := sip.MakeDialogIDFromRequest(req)

	offer := &pionsdp.SessionDescription{}
	if err := offer.Unmarshal(req.Body()); err != nil {
		slog.Warn("gateway: invite has no usable sdp offer", "err", err)
		tx.Respond(sip.NewResponseFromRequest(req, 488, "Not Acceptable Here", nil))
		return
	}
	remoteRTP, err := remoteAudioAddr(offer)
	if err != nil {
		slog.Warn("gateway: invite offer has no audio/PCMU", "err", err)
		tx.Respond(sip.NewResponseFromRequest(req, 488, "Not Acceptable Here", nil))
		return
	}

	localAddr, release, err := s.rtpPool.acquire(hostOnly(s.cfg.listenAddr, s.cfg.rtpHost))
	if err != nil {
		slog.Error("gateway: no free rtp port", "err", err)
		tx.Respond(sip.NewResponseFromRequest(req, 503, "Service Unavailable", nil))
		return
	}

	rtp, err := newRTPTransport(localAddr.String(), sipSSRC())
	if err != nil {
		release()
		slog.Error("gateway: failed to bind rtp socket", "err", err)
		tx.Respond(sip.NewResponseFromRequest(req, 500, "Server Internal Error", nil))
		return
	}
	rtp.setRemoteAddr(remoteRTP)

	answer := buildAnswerSDP(s.cfg, localAddr)
	answerBody, err := answer.Marshal()
	if err != nil {
		rtp.Close()
		release()
		slog.Error("gateway: failed to marshal sdp answer", "err", err)
		tx.Respond(sip.NewResponseFromRequest(req, 500, "Server Internal Error", nil))
		return
	}

	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", answerBody)
	res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	if err := tx.Respond(res); err != nil {
		rtp.Close()
		release()
		slog.Error("gateway: failed to send 200 OK", "err", err)
		return
	}

	call := &activeCall{
		dialogID: dialogID,
		rtp:      rtp,
		release:  release,
	}
	s.onCall(call)
}

func (s *sipUA) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	if err := s.dialogSrv.ReadBye(req, tx); err != nil {
		slog.Warn("gateway: bye on unknown dialog", "err", err)
		return
	}
	dlgID, _ := sip.MakeDialogIDFromRequest(req)
	if dlgID != "" && s.onCall != nil {
		s.onCall(&activeCall{dialogID: dlgID, ended: true})
	}
}

// remoteAudioAddr extracts the offered audio m= line's connection address
// and port, requiring static PCMU (payload type 0) among the formats.
func remoteAudioAddr(offer *pionsdp.SessionDescription) (*net.UDPAddr, error) {
	for _, md := range offer.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		hasPCMU := false
		for _, f := range md.MediaName.Formats {
			if f == "0" {
				hasPCMU = true
			}
		}
		if !hasPCMU {
			continue
		}

		host := ""
		if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
			host = md.ConnectionInformation.Address.Address
		} else if offer.ConnectionInformation != nil && offer.ConnectionInformation.Address != nil {
			host = offer.ConnectionInformation.Address.Address
		}
		if host == "" {
			return nil, fmt.Errorf("gateway: sdp offer missing connection address")
		}
		return net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, md.MediaName.Port.Value))
	}
	return nil, fmt.Errorf("gateway: sdp offer has no audio/PCMU media line")
}

// buildAnswerSDP builds a static G.711 PCMU answer, grounded on the shape
// of the teacher's cmd/test_sip/main.go hand-built SDP template, expressed
// through pion/sdp/v3's structured builder instead of a string template.
func buildAnswerSDP(cfg gatewayConfig, localAddr *net.UDPAddr) *pionsdp.SessionDescription {
	ip := localAddr.IP.String()
	originAddr := ip
	if localAddr.IP.IsUnspecified() {
		originAddr = "127.0.0.1"
		ip = "127.0.0.1"
	}

	return &pionsdp.SessionDescription{
		Version: 0,
		Origin: pionsdp.Origin{
			Username:       cfg.username,
			SessionID:      sdpSessionID(),
			SessionVersion: sdpSessionID(),
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: originAddr,
		},
		SessionName: "voicegateway",
		ConnectionInformation: &pionsdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &pionsdp.Address{Address: ip},
		},
		TimeDescriptions: []pionsdp.TimeDescription{{Timing: pionsdp.Timing{StartTime: 0, StopTime: 0}}},
		MediaDescriptions: []*pionsdp.MediaDescription{
			{
				MediaName: pionsdp.MediaName{
					Media:   "audio",
					Port:    pionsdp.RangedPort{Value: localAddr.Port},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{"0"},
				},
				Attributes: []pionsdp.Attribute{
					{Key: "rtpmap", Value: "0 PCMU/8000"},
					{Key: "ptime", Value: "20"},
					{Key: "sendrecv"},
				},
			},
		},
	}
}

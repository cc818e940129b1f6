package rtc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

func codecType(kind core.MediaKind) webrtc.RTPCodecType {
	if kind == core.MediaKindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

func toPionCodec(c core.RTPCodec) webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    c.MimeType,
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
			SDPFmtpLine: c.SDPFmtpLine,
		},
		PayloadType: webrtc.PayloadType(c.PayloadType),
	}
}

// sameCodec compares mime type, clock rate and channel count. Zero channels
// on either side matches anything.
func sameCodec(a, b core.RTPCodec) bool {
	if !strings.EqualFold(a.MimeType, b.MimeType) || a.ClockRate != b.ClockRate {
		return false
	}
	return a.Channels == 0 || b.Channels == 0 || a.Channels == b.Channels
}

// supports reports whether caps can decode codec.
func supports(caps core.RTPCapabilities, codec core.RTPCodec) bool {
	return lo.ContainsBy(caps.Codecs, func(c core.RTPCodec) bool { return sameCodec(c, codec) })
}

// negotiate picks the router codec the producer sends with. When the client
// leaves the payload type out, the router's own is used.
func negotiate(routerCodecs []core.RTPCodec, kind core.MediaKind, rtp core.RTPParameters) (core.RTPCodec, webrtc.SSRC, error) {
	if len(rtp.Encodings) == 0 || rtp.Encodings[0].SSRC == 0 {
		return core.RTPCodec{}, 0, errors.New("rtp parameters carry no ssrc")
	}
	for _, offered := range rtp.Codecs {
		match, ok := lo.Find(routerCodecs, func(c core.RTPCodec) bool {
			return c.Kind == kind && sameCodec(c, offered)
		})
		if !ok {
			continue
		}
		if offered.PayloadType != 0 {
			match.PayloadType = offered.PayloadType
		}
		return match, webrtc.SSRC(rtp.Encodings[0].SSRC), nil
	}
	return core.RTPCodec{}, 0, fmt.Errorf("%w for %s", ErrUnsupportedCodec, kind)
}

func toPionICE(p core.ICEParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.ICELite,
	}
}

func fromPionICE(p webrtc.ICEParameters) core.ICEParameters {
	return core.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.ICELite,
	}
}

func toPionDTLSRole(role string) webrtc.DTLSRole {
	switch strings.ToLower(role) {
	case "client":
		return webrtc.DTLSRoleClient
	case "server":
		return webrtc.DTLSRoleServer
	default:
		return webrtc.DTLSRoleAuto
	}
}

func toPionDTLS(p core.DTLSParameters) webrtc.DTLSParameters {
	return webrtc.DTLSParameters{
		Role: toPionDTLSRole(p.Role),
		Fingerprints: lo.Map(p.Fingerprints, func(f core.DTLSFingerprint, _ int) webrtc.DTLSFingerprint {
			return webrtc.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value}
		}),
	}
}

func fromPionDTLS(p webrtc.DTLSParameters) core.DTLSParameters {
	return core.DTLSParameters{
		Role: p.Role.String(),
		Fingerprints: lo.Map(p.Fingerprints, func(f webrtc.DTLSFingerprint, _ int) core.DTLSFingerprint {
			return core.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value}
		}),
	}
}

func fromPionCandidates(cands []webrtc.ICECandidate) []core.ICECandidate {
	return lo.Map(cands, func(c webrtc.ICECandidate, _ int) core.ICECandidate {
		return core.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
		}
	})
}

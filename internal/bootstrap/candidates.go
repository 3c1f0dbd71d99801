package bootstrap

import (
	"github.com/pion/webrtc/v4"

	"github.com/chordmesh/ringsnode/internal/wire"
)

func toTricklePayload(sdp string, candidates []webrtc.ICECandidateInit) wire.TricklePayload {
	out := make([]wire.IceCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, wire.IceCandidate{
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
		})
	}
	return wire.TricklePayload{SDP: sdp, Candidates: out}
}

func fromIceCandidate(c wire.IceCandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

package webrtc

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// WHEP negotiates a new listener session for the given SDP offer and
// tracks it as a viewers.ProtocolWHEP connection keyed off r, so
// /status and the shared listener count stay consistent with HLS and
// Icecast.
func WHEP(offer string, r *http.Request) (string, string, error) {
	maybePrintOfferAnswer(offer, true)

	if str == nil {
		return "", "", webrtc.ErrConnectionClosed
	}

	whepSessionId := uuid.New().String()

	registerWhepSession(whepSessionId, r)
	cleanup := func() { listenerDisconnected(whepSessionId) }

	pc, err := newPeerConnection(apiWhep)
	if err != nil {
		cleanup()
		return "", "", err
	}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			_ = pc.Close()
			cleanup()
		}
	})

	rtpSender, err := pc.AddTrack(str.audioTrack)
	if err != nil {
		cleanup()
		return "", "", err
	}

	// i have no idea if we need to drain the RTCP so the sender doesn't stall.
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := rtpSender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		SDP:  offer,
		Type: webrtc.SDPTypeOffer,
	}); err != nil {
		cleanup()

		return "", "", err
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		cleanup()

		return "", "", err
	}
	if err = pc.SetLocalDescription(answer); err != nil {
		cleanup()

		return "", "", err
	}

	<-gatherComplete

	return maybePrintOfferAnswer(appendAnswer(pc.LocalDescription().SDP), false), whepSessionId, nil
}

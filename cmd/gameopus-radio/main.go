// Command gameopus-radio serves a continuously-playing internet radio
// station over WHEP, HLS, and Icecast, built from a catalog of
// game-container Opus tracks that are reframed into standard Ogg-Opus
// on the fly. It plays the role the original broadcast server's
// main.go did: boot configuration, wire the transcoders, and expose
// the listener-facing HTTP endpoints.
package main

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/nexusradio/gameopus/internal/audio"
	"github.com/nexusradio/gameopus/internal/catalog"
	"github.com/nexusradio/gameopus/internal/config"
	"github.com/nexusradio/gameopus/internal/hls"
	"github.com/nexusradio/gameopus/internal/icecast"
	"github.com/nexusradio/gameopus/internal/station"
	"github.com/nexusradio/gameopus/internal/viewers"
	"github.com/nexusradio/gameopus/internal/webrtc"
)

func whepHandler(res http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(res, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	offer, err := io.ReadAll(req.Body)
	if err != nil {
		logHTTPError(res, err.Error(), http.StatusBadRequest)
		return
	}

	answer, _, err := webrtc.WHEP(string(offer), req)
	if err != nil {
		logHTTPError(res, err.Error(), http.StatusBadRequest)
		return
	}

	res.Header().Add("Location", "/api/whep")
	res.Header().Add("Content-Type", "application/sdp")
	res.WriteHeader(http.StatusCreated)
	if _, err := io.WriteString(res, answer); err != nil {
		log.Error().Err(err).Msg("write whep answer")
	}
}

func statusHandler(cfg *config.Config) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if cfg.DisableStatus {
			logHTTPError(res, "status service unavailable", http.StatusServiceUnavailable)
			return
		}

		res.Header().Add("Content-Type", "application/json")

		payload := struct {
			Streams []webrtc.StreamStatus  `json:"streams"`
			Viewers viewers.ProtocolCounts `json:"viewers"`
		}{
			Streams: webrtc.GetStreamStatus(),
			Viewers: viewers.Counts(),
		}

		if err := json.NewEncoder(res).Encode(payload); err != nil {
			logHTTPError(res, err.Error(), http.StatusInternalServerError)
		}
	}
}

func logHTTPError(w http.ResponseWriter, msg string, code int) {
	log.Error().Str("error", msg).Int("status", code).Msg("http error")
	http.Error(w, msg, code)
}

func corsHandler(next http.HandlerFunc) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		res.Header().Set("Access-Control-Allow-Origin", "*")
		res.Header().Set("Access-Control-Allow-Methods", "*")
		res.Header().Set("Access-Control-Allow-Headers", "*")
		res.Header().Set("Access-Control-Expose-Headers", "*")

		if req.Method != http.MethodOptions {
			next(res, req)
		}
	}
}

func main() {
	station.ConfigureLogger(os.Getenv("DEBUG") != "")

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("gameopus-radio")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	entries, err := catalog.Load(cfg.CatalogDir)
	if err != nil {
		return err
	}

	webrtc.Configure()
	track, err := webrtc.GetAudioTrack()
	if err != nil {
		return err
	}

	cursor := audio.NewCursor()
	var sinks []station.AudioWriter

	if !cfg.DisableHLS {
		hlsStreamer, err := hls.Start(hls.Config{
			OutputDir:  filepath.Clean(cfg.HLSOutDir),
			FfmpegPath: cfg.FfmpegPath,
			Cursor:     cursor,
		})
		if err != nil {
			log.Warn().Err(err).Msg("HLS disabled: ffmpeg transcoder failed to start")
		} else {
			sinks = append(sinks, hlsStreamer)
			defer hlsStreamer.Close()
			http.Handle("/api/hls/", http.StripPrefix("/api/hls/", hlsStreamer.Handler()))
		}
	}

	if !cfg.DisableIcecast {
		icecastStreamer, err := icecast.Start(icecast.Config{
			FfmpegPath:  cfg.FfmpegPath,
			Cursor:      cursor,
			StationName: "GameOpus Radio",
			StreamPath:  "/api/icecast.mp3",
		})
		if err != nil {
			log.Warn().Err(err).Msg("Icecast disabled: ffmpeg transcoder failed to start")
		} else {
			sinks = append(sinks, icecastStreamer)
			defer icecastStreamer.Close()
			http.Handle("/api/icecast.mp3", icecastStreamer.Handler())
			http.Handle("/api/icecast.m3u8", icecastStreamer.PlaylistHandler())
		}
	}

	st, err := station.New(entries, track, cursor, sinks, webrtc.PublishNowPlaying)
	if err != nil {
		return err
	}
	st.Run()

	http.HandleFunc("/api/whep", corsHandler(whepHandler))
	http.HandleFunc("/api/status", corsHandler(statusHandler(cfg)))

	server := &http.Server{Addr: cfg.HTTPAddress}

	log.Info().Str("addr", cfg.HTTPAddress).Int("tracks", len(entries)).Msg("gameopus-radio listening")

	if cfg.SSLKey != "" && cfg.SSLCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.SSLCert, cfg.SSLKey)
		if err != nil {
			return err
		}
		server.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		err = server.ListenAndServeTLS("", "")
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}

	err = server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

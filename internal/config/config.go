// Package config centralizes the environment-variable configuration
// the radio server reads at boot, loaded via godotenv the same way the
// original broadcast server did.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the resolved set of environment knobs the server needs at
// startup. Individual packages (webrtc, hls) still read their
// own narrower os.Getenv calls for settings wired directly into
// SettingEngine construction or ffmpeg invocation; this struct only
// covers the top-level wiring main.go itself is responsible for.
type Config struct {
	HTTPAddress string
	SSLKey      string
	SSLCert     string

	CatalogDir     string
	FfmpegPath     string
	HLSOutDir      string
	DisableHLS     bool
	DisableIcecast bool
	DisableStatus  bool
}

// envFile is the dotenv file the server looks for in its working
// directory.
const envFile = ".env.production"

// Load reads envFile (if present — its absence is not an error, since
// a production deployment may set real environment variables instead)
// and resolves a Config from the environment.
func Load() (*Config, error) {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		HTTPAddress:    getenv("HTTP_ADDRESS", ":8080"),
		SSLKey:         os.Getenv("SSL_KEY"),
		SSLCert:        os.Getenv("SSL_CERT"),
		CatalogDir:     getenv("CATALOG_DIR", "catalog"),
		FfmpegPath:     os.Getenv("FFMPEG_PATH"),
		HLSOutDir:      getenv("HLS_OUTPUT_DIR", "hls"),
		DisableHLS:     getenvBool("DISABLE_HLS"),
		DisableIcecast: getenvBool("DISABLE_ICECAST"),
		DisableStatus:  getenvBool("DISABLE_STATUS"),
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true // any non-empty, non-boolean value is treated as "set"
	}
	return b
}

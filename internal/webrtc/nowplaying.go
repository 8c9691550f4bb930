package webrtc

// PublishNowPlaying updates the shared metadata surfaced by /api/status.
// The station calls this once per track change; unlike the original
// media-folder scan, titles and artists come from the catalog sidecar
// rather than being sniffed out of embedded OpusTags — the game
// container formats this server reframes carry no comment packet of
// their own.
func PublishNowPlaying(title string, artists []string) {
	if str == nil {
		return
	}
	str.nowPlayingLock.Lock()
	str.nowPlayingTitle = title

	dst := make([]string, 0, len(artists))
	dst = append(dst, artists...)
	str.nowPlayingArtists = dst

	str.nowPlayingLock.Unlock()
}

// CurrentNowPlaying returns the title/artists last published.
func CurrentNowPlaying() (title string, artists []string) {
	if str == nil {
		return "", []string{}
	}
	str.nowPlayingLock.RLock()
	title = str.nowPlayingTitle

	out := make([]string, 0, len(str.nowPlayingArtists))
	out = append(out, str.nowPlayingArtists...)
	str.nowPlayingLock.RUnlock()
	return title, out
}

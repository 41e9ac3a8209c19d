package tasks

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/shared"
)

// BatchParameters returns the indexed track.scrobble parameters for ev at batch position i.
func BatchParameters(ev models.PlayEvent, i int) url.Values {
	key := func(name string) string { return fmt.Sprintf("%s[%d]", name, i) }

	params := url.Values{}
	params.Set(key("timestamp"), strconv.FormatInt(ev.StartedAt.Unix(), 10))
	params.Set(key("track"), ev.Title)
	params.Set(key("artist"), ev.Artist)
	params.Set(key("album"), ev.Album)
	params.Set(key("trackNumber"), optionalInt(ev.TrackNumber))
	params.Set(key("duration"), optionalInt(ev.DurationSeconds))
	params.Set(key("mbid"), mbid(ev.MusicBrainzID))
	if ev.ChosenByUser() {
		params.Set(key("chosenByUser"), "1")
	} else {
		params.Set(key("chosenByUser"), "0")
	}
	return params
}

// NowPlayingParameters returns the track.updateNowPlaying parameters.
func NowPlayingParameters(np models.NowPlaying) url.Values {
	params := url.Values{}
	params.Set("artist", np.Artist)
	params.Set("track", np.Title)
	if np.Album != "" {
		params.Set("album", np.Album)
	}
	if np.TrackNumber > 0 {
		params.Set("trackNumber", strconv.Itoa(np.TrackNumber))
	}
	if np.DurationSeconds > 0 {
		params.Set("duration", strconv.Itoa(np.DurationSeconds))
	}
	if id := mbid(np.MusicBrainzID); id != "" {
		params.Set("mbid", id)
	}
	return params
}

func optionalInt(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// mbid drops identifiers that are not UUIDs; the service rejects the whole call otherwise.
func mbid(id string) string {
	if shared.IsUUID(id) {
		return id
	}
	return ""
}

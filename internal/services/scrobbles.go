package services

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// TextField is a service string value with its correction flag, e.g. {"corrected":"0","#text":"Abba"}.
type TextField struct {
	Text      string `mapstructure:"#text"`
	Corrected int    `mapstructure:"corrected"`
}

// IgnoredMessage explains why the service ignored a scrobble. Code 0 means it was accepted.
type IgnoredMessage struct {
	Code int    `mapstructure:"code"`
	Text string `mapstructure:"#text"`
}

// Reason describes the ignore code.
func (m IgnoredMessage) Reason() string {
	switch m.Code {
	case 0:
		return ""
	case 1:
		return "artist was ignored"
	case 2:
		return "track was ignored"
	case 3:
		return "timestamp was too old"
	case 4:
		return "timestamp was too new"
	case 5:
		return "daily scrobble limit exceeded"
	default:
		return fmt.Sprintf("ignored (code %d)", m.Code)
	}
}

// ScrobbleResult is the per-track entry of a track.scrobble response.
type ScrobbleResult struct {
	Track          TextField      `mapstructure:"track"`
	Artist         TextField      `mapstructure:"artist"`
	Album          TextField      `mapstructure:"album"`
	Timestamp      int64          `mapstructure:"timestamp"`
	IgnoredMessage IgnoredMessage `mapstructure:"ignoredMessage"`
}

// Ignored reports whether the service dropped this track.
func (s ScrobbleResult) Ignored() bool {
	return s.IgnoredMessage.Code != 0
}

// ScrobbleResponse is the decoded body of a successful track.scrobble call.
type ScrobbleResponse struct {
	Accepted  int
	Ignored   int
	Scrobbles []ScrobbleResult
}

type scrobbleAttr struct {
	Accepted int `mapstructure:"accepted"`
	Ignored  int `mapstructure:"ignored"`
}

// ParseScrobbleResponse decodes the "scrobbles" object of a response map.
//
// The service returns a single object instead of a list when one track was sent.
func ParseScrobbleResponse(obj map[string]any) (*ScrobbleResponse, error) {
	root, ok := obj["scrobbles"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("response has no scrobbles object")
	}

	var attr scrobbleAttr
	if err := weakDecode(root["@attr"], &attr); err != nil {
		return nil, fmt.Errorf("failed to decode scrobble attributes: %w", err)
	}

	var items []any
	switch v := root["scrobble"].(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	}

	resp := &ScrobbleResponse{Accepted: attr.Accepted, Ignored: attr.Ignored}
	for i, item := range items {
		var sr ScrobbleResult
		if err := weakDecode(item, &sr); err != nil {
			return nil, fmt.Errorf("failed to decode scrobble %d: %w", i, err)
		}
		resp.Scrobbles = append(resp.Scrobbles, sr)
	}
	return resp, nil
}

func weakDecode(input, out any) error {
	if input == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

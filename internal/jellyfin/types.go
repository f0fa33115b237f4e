// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jellyfin

import "time"

// StreamType is the MediaStream "Type" discriminator.
type StreamType string

const (
	StreamVideo    StreamType = "Video"
	StreamAudio    StreamType = "Audio"
	StreamSubtitle StreamType = "Subtitle"
)

// DeliveryMethod tells how a subtitle stream reaches the client.
type DeliveryMethod string

const (
	DeliveryEmbed    DeliveryMethod = "Embed"
	DeliveryExternal DeliveryMethod = "External"
	DeliveryHLS      DeliveryMethod = "Hls"
	DeliveryEncode   DeliveryMethod = "Encode"
)

// ItemKind is the BaseItemDto "Type" field.
type ItemKind string

const (
	KindMovie        ItemKind = "Movie"
	KindEpisode      ItemKind = "Episode"
	KindVideo        ItemKind = "Video"
	KindMusicVideo   ItemKind = "MusicVideo"
	KindTrailer      ItemKind = "Trailer"
	KindTvChannel    ItemKind = "TvChannel"
	KindRecording    ItemKind = "Recording"
	KindSeries       ItemKind = "Series"
	KindAudio        ItemKind = "Audio"
	KindFolder       ItemKind = "Folder"
	KindCollection   ItemKind = "BoxSet"
	KindPhoto        ItemKind = "Photo"
	KindSeason       ItemKind = "Season"
	KindPlaylist     ItemKind = "Playlist"
)

// Playable reports whether the item kind can be handed to a video player.
func (k ItemKind) Playable() bool {
	switch k {
	case KindMovie, KindEpisode, KindVideo, KindMusicVideo, KindTrailer, KindTvChannel, KindRecording, KindAudio:
		return true
	default:
		return false
	}
}

// Item is the subset of BaseItemDto used by playback.
type Item struct {
	ID                string        `json:"Id"`
	Name              string        `json:"Name"`
	Type              ItemKind      `json:"Type"`
	SeriesID          string        `json:"SeriesId,omitempty"`
	SeriesName        string        `json:"SeriesName,omitempty"`
	SeasonID          string        `json:"SeasonId,omitempty"`
	ParentIndexNumber int           `json:"ParentIndexNumber,omitempty"`
	IndexNumber       int           `json:"IndexNumber,omitempty"`
	RunTimeTicks      int64         `json:"RunTimeTicks,omitempty"`
	MediaSources      []MediaSource `json:"MediaSources,omitempty"`
	UserData          *UserData     `json:"UserData,omitempty"`
}

// UserData carries per-user item state.
type UserData struct {
	PlaybackPositionTicks int64 `json:"PlaybackPositionTicks"`
	Played                bool  `json:"Played"`
}

// MediaSource is one playable rendition of an item.
type MediaSource struct {
	ID                     string        `json:"Id"`
	Name                   string        `json:"Name,omitempty"`
	Path                   string        `json:"Path,omitempty"`
	Protocol               string        `json:"Protocol,omitempty"`
	Container              string        `json:"Container,omitempty"`
	ETag                   string        `json:"ETag,omitempty"`
	RunTimeTicks           int64         `json:"RunTimeTicks,omitempty"`
	SupportsDirectPlay     bool          `json:"SupportsDirectPlay"`
	SupportsDirectStream   bool          `json:"SupportsDirectStream"`
	SupportsTranscoding    bool          `json:"SupportsTranscoding"`
	TranscodingURL         string        `json:"TranscodingUrl,omitempty"`
	TranscodingSubProtocol string        `json:"TranscodingSubProtocol,omitempty"`
	TranscodingContainer   string        `json:"TranscodingContainer,omitempty"`
	DefaultAudioStreamIdx  *int          `json:"DefaultAudioStreamIndex,omitempty"`
	DefaultSubtitleIdx     *int          `json:"DefaultSubtitleStreamIndex,omitempty"`
	MediaStreams           []MediaStream `json:"MediaStreams,omitempty"`
}

// Streams returns the streams of the given type in server order.
func (s *MediaSource) Streams(t StreamType) []MediaStream {
	if s == nil {
		return nil
	}
	out := make([]MediaStream, 0, len(s.MediaStreams))
	for _, st := range s.MediaStreams {
		if st.Type == t {
			out = append(out, st)
		}
	}
	return out
}

// Stream looks up a stream by server index.
func (s *MediaSource) Stream(index int) (MediaStream, bool) {
	if s == nil {
		return MediaStream{}, false
	}
	for _, st := range s.MediaStreams {
		if st.Index == index {
			return st, true
		}
	}
	return MediaStream{}, false
}

// MediaStream is a single video, audio or subtitle stream.
type MediaStream struct {
	Type             StreamType     `json:"Type"`
	Index            int            `json:"Index"`
	Codec            string         `json:"Codec,omitempty"`
	Language         string         `json:"Language,omitempty"`
	Title            string         `json:"Title,omitempty"`
	DisplayTitle     string         `json:"DisplayTitle,omitempty"`
	IsDefault        bool           `json:"IsDefault"`
	IsForced         bool           `json:"IsForced"`
	IsExternal       bool           `json:"IsExternal"`
	DeliveryMethod   DeliveryMethod `json:"DeliveryMethod,omitempty"`
	DeliveryURL      string         `json:"DeliveryUrl,omitempty"`
	Width            int            `json:"Width,omitempty"`
	Height           int            `json:"Height,omitempty"`
	Channels         int            `json:"Channels,omitempty"`
	BitRate          int            `json:"BitRate,omitempty"`
	RealFrameRate    float64        `json:"RealFrameRate,omitempty"`
	AverageFrameRate float64        `json:"AverageFrameRate,omitempty"`
}

// FrameRate returns the real frame rate, falling back to the average.
func (s MediaStream) FrameRate() float64 {
	if s.RealFrameRate > 0 {
		return s.RealFrameRate
	}
	return s.AverageFrameRate
}

// DeliveredExternally reports whether the subtitle is fetched as a separate file.
func (s MediaStream) DeliveredExternally() bool {
	return s.IsExternal || s.DeliveryMethod == DeliveryExternal
}

// PlaybackInfoRequest is the body of POST /Items/{id}/PlaybackInfo.
type PlaybackInfoRequest struct {
	UserID               string         `json:"UserId,omitempty"`
	MaxStreamingBitrate  *int           `json:"MaxStreamingBitrate,omitempty"`
	StartTimeTicks       *int64         `json:"StartTimeTicks,omitempty"`
	AudioStreamIndex     *int           `json:"AudioStreamIndex,omitempty"`
	SubtitleStreamIndex  *int           `json:"SubtitleStreamIndex,omitempty"`
	MaxAudioChannels     *int           `json:"MaxAudioChannels,omitempty"`
	MediaSourceID        string         `json:"MediaSourceId,omitempty"`
	EnableDirectPlay     bool           `json:"EnableDirectPlay"`
	EnableDirectStream   bool           `json:"EnableDirectStream"`
	EnableTranscoding    bool           `json:"EnableTranscoding"`
	AllowVideoStreamCopy bool           `json:"AllowVideoStreamCopy"`
	AllowAudioStreamCopy bool           `json:"AllowAudioStreamCopy"`
	AutoOpenLiveStream   bool           `json:"AutoOpenLiveStream"`
	DeviceProfile        *DeviceProfile `json:"DeviceProfile,omitempty"`
}

// DeviceProfile advertises client capabilities. Only the fields the server
// needs for the transcode decision are modelled.
type DeviceProfile struct {
	Name                string              `json:"Name,omitempty"`
	MaxStreamingBitrate int                 `json:"MaxStreamingBitrate,omitempty"`
	DirectPlayProfiles  []DirectPlayProfile `json:"DirectPlayProfiles"`
	TranscodingProfiles []TranscodeProfile  `json:"TranscodingProfiles"`
	SubtitleProfiles    []SubtitleProfile   `json:"SubtitleProfiles"`
}

// DirectPlayProfile lists containers and codecs played without conversion.
type DirectPlayProfile struct {
	Type       string `json:"Type"`
	Container  string `json:"Container,omitempty"`
	VideoCodec string `json:"VideoCodec,omitempty"`
	AudioCodec string `json:"AudioCodec,omitempty"`
}

// TranscodeProfile is the target when the server must convert.
type TranscodeProfile struct {
	Type       string `json:"Type"`
	Container  string `json:"Container"`
	Protocol   string `json:"Protocol"`
	VideoCodec string `json:"VideoCodec,omitempty"`
	AudioCodec string `json:"AudioCodec,omitempty"`
	Context    string `json:"Context"`
}

// SubtitleProfile declares a subtitle format and how it may be delivered.
type SubtitleProfile struct {
	Format string         `json:"Format"`
	Method DeliveryMethod `json:"Method"`
}

// PlaybackInfoResponse is returned by the PlaybackInfo endpoint.
type PlaybackInfoResponse struct {
	MediaSources  []MediaSource `json:"MediaSources"`
	PlaySessionID string        `json:"PlaySessionId"`
	ErrorCode     string        `json:"ErrorCode,omitempty"`
}

// SegmentType classifies a media segment.
type SegmentType string

const (
	SegmentUnknown    SegmentType = "Unknown"
	SegmentCommercial SegmentType = "Commercial"
	SegmentPreview    SegmentType = "Preview"
	SegmentRecap      SegmentType = "Recap"
	SegmentOutro      SegmentType = "Outro"
	SegmentIntro      SegmentType = "Intro"
)

// MediaSegment is a tagged time range eligible for skipping.
type MediaSegment struct {
	ID         string      `json:"Id"`
	ItemID     string      `json:"ItemId"`
	Type       SegmentType `json:"Type"`
	StartTicks int64       `json:"StartTicks"`
	EndTicks   int64       `json:"EndTicks"`
}

// Start returns the segment start as a duration.
func (s MediaSegment) Start() time.Duration { return TicksToDuration(s.StartTicks) }

// End returns the segment end as a duration.
func (s MediaSegment) End() time.Duration { return TicksToDuration(s.EndTicks) }

// Contains reports whether position falls inside the segment.
func (s MediaSegment) Contains(position time.Duration) bool {
	return position >= s.Start() && position < s.End()
}

type segmentsResponse struct {
	Items []MediaSegment `json:"Items"`
}

// PlayingReport is the body of the session playing/progress/stopped calls.
type PlayingReport struct {
	ItemID              string `json:"ItemId"`
	MediaSourceID       string `json:"MediaSourceId,omitempty"`
	PlaySessionID       string `json:"PlaySessionId,omitempty"`
	PositionTicks       int64  `json:"PositionTicks"`
	IsPaused            bool   `json:"IsPaused"`
	PlayMethod          string `json:"PlayMethod,omitempty"`
	AudioStreamIndex    *int   `json:"AudioStreamIndex,omitempty"`
	SubtitleStreamIndex *int   `json:"SubtitleStreamIndex,omitempty"`
	CanSeek             bool   `json:"CanSeek"`
}

// TicksToDuration converts server ticks (100ns units) to a duration.
func TicksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * 100
}

// DurationToTicks converts a duration to server ticks.
func DurationToTicks(d time.Duration) int64 {
	return int64(d / 100)
}

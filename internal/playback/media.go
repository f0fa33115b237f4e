// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"strings"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	"github.com/ManuGH/jfplay/internal/player"
)

const mimeHLS = "application/x-mpegURL"

var containerMIME = map[string]string{
	"mkv":    "video/x-matroska",
	"webm":   "video/webm",
	"mp4":    "video/mp4",
	"m4v":    "video/mp4",
	"mov":    "video/mp4",
	"ts":     "video/mp2t",
	"mpegts": "video/mp2t",
	"m2ts":   "video/mp2t",
	"avi":    "video/x-msvideo",
	"ogv":    "video/ogg",
	"m3u8":   mimeHLS,
	"hls":    mimeHLS,
}

var subtitleMIME = map[string]string{
	"srt":    "application/x-subrip",
	"subrip": "application/x-subrip",
	"ass":    "text/x-ssa",
	"ssa":    "text/x-ssa",
	"vtt":    "text/vtt",
	"webvtt": "text/vtt",
	"ttml":   "application/ttml+xml",
	"pgssub": "application/pgs",
	"dvdsub": "application/vobsub",
}

// ContainerMIME maps a container name (first entry of a comma list) to a
// MIME type. Unknown containers give "" and leave detection to the player.
func ContainerMIME(container string) string {
	c := strings.ToLower(strings.TrimSpace(strings.Split(container, ",")[0]))
	return containerMIME[c]
}

// SubtitleMIME maps a subtitle codec to a MIME type.
func SubtitleMIME(codec string) string {
	if m, ok := subtitleMIME[strings.ToLower(codec)]; ok {
		return m
	}
	return "text/plain"
}

// mediaMIME picks the MIME type of what will actually be streamed.
func mediaMIME(src *jellyfin.MediaSource, method model.PlayMethod) string {
	if method == model.PlayMethodTranscode {
		if strings.EqualFold(src.TranscodingSubProtocol, "hls") {
			return mimeHLS
		}
		return ContainerMIME(src.TranscodingContainer)
	}
	return ContainerMIME(src.Container)
}

// negotiate derives play method and URL from the server's answer, in the
// order direct play, direct stream, transcode. The server may offer a
// transcoding URL next to a stream it can also remux; remuxing wins.
func negotiate(server Server, itemID, playSessionID string, src *jellyfin.MediaSource, req jellyfin.PlaybackInfoRequest) (model.PlayMethod, string) {
	switch {
	case src.SupportsDirectPlay && req.EnableDirectPlay:
		return model.PlayMethodDirectPlay, server.StreamURL(itemID, src.ID, src.Container, playSessionID)
	case src.SupportsDirectStream && req.EnableDirectStream:
		return model.PlayMethodDirectStream, server.StreamURL(itemID, src.ID, src.Container, playSessionID)
	case src.TranscodingURL != "" && req.EnableTranscoding:
		return model.PlayMethodTranscode, server.ResolveURL(src.TranscodingURL)
	}
	return "", ""
}

// buildMediaItem assembles the player input. The desired subtitle is
// side-loaded when the server delivers it externally.
func buildMediaItem(server Server, itemID string, src *jellyfin.MediaSource, method model.PlayMethod, uri string, subtitle model.SubtitleChoice) player.MediaItem {
	item := player.MediaItem{
		ID:       itemID,
		URI:      uri,
		MimeType: mediaMIME(src, method),
	}
	idx, ok := subtitle.Index()
	if !ok {
		return item
	}
	stream, found := src.Stream(idx)
	if !found || stream.Type != jellyfin.StreamSubtitle || !stream.DeliveredExternally() {
		return item
	}
	label := stream.DisplayTitle
	if label == "" {
		label = stream.Title
	}
	item.Subtitles = append(item.Subtitles, player.SubtitleConfiguration{
		ID:       player.ExternalSubtitleID(idx),
		URI:      server.SubtitleURL(itemID, src.ID, stream),
		MimeType: SubtitleMIME(stream.Codec),
		Language: stream.Language,
		Label:    label,
	})
	return item
}

// DeviceProfile describes what a backend can play so the server can decide
// between direct play, direct stream and transcoding.
func DeviceProfile(backend player.Backend, maxBitrate int) *jellyfin.DeviceProfile {
	p := &jellyfin.DeviceProfile{
		Name:                "jfplay-" + string(backend),
		MaxStreamingBitrate: maxBitrate,
		TranscodingProfiles: []jellyfin.TranscodeProfile{{
			Type:       "Video",
			Container:  "ts",
			Protocol:   "hls",
			VideoCodec: "h264,hevc",
			AudioCodec: "aac,ac3,eac3,mp3",
			Context:    "Streaming",
		}},
		SubtitleProfiles: []jellyfin.SubtitleProfile{
			{Format: "srt", Method: jellyfin.DeliveryExternal},
			{Format: "subrip", Method: jellyfin.DeliveryExternal},
			{Format: "vtt", Method: jellyfin.DeliveryExternal},
			{Format: "ass", Method: jellyfin.DeliveryExternal},
			{Format: "ssa", Method: jellyfin.DeliveryExternal},
			{Format: "srt", Method: jellyfin.DeliveryEmbed},
			{Format: "subrip", Method: jellyfin.DeliveryEmbed},
			{Format: "ass", Method: jellyfin.DeliveryEmbed},
			{Format: "ssa", Method: jellyfin.DeliveryEmbed},
		},
	}

	switch backend {
	case player.BackendMPV:
		// mpv demuxes nearly everything through ffmpeg.
		p.DirectPlayProfiles = []jellyfin.DirectPlayProfile{
			{Type: "Video", Container: "mkv,webm,mp4,m4v,mov,ts,mpegts,m2ts,avi,ogv"},
			{Type: "Audio"},
		}
		p.SubtitleProfiles = append(p.SubtitleProfiles,
			jellyfin.SubtitleProfile{Format: "pgssub", Method: jellyfin.DeliveryEmbed},
			jellyfin.SubtitleProfile{Format: "dvdsub", Method: jellyfin.DeliveryEmbed},
			jellyfin.SubtitleProfile{Format: "dvbsub", Method: jellyfin.DeliveryEmbed},
		)
	default:
		p.DirectPlayProfiles = []jellyfin.DirectPlayProfile{
			{Type: "Video", Container: "mp4,m4v,mkv,webm,ts", VideoCodec: "h264,hevc,vp9,av1", AudioCodec: "aac,ac3,eac3,mp3,opus,flac"},
		}
		p.SubtitleProfiles = append(p.SubtitleProfiles,
			jellyfin.SubtitleProfile{Format: "pgssub", Method: jellyfin.DeliveryEncode},
			jellyfin.SubtitleProfile{Format: "dvdsub", Method: jellyfin.DeliveryEncode},
		)
	}
	return p
}

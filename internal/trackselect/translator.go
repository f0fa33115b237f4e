// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package trackselect

import (
	"sort"

	"github.com/ManuGH/jfplay/internal/jellyfin"
	"github.com/ManuGH/jfplay/internal/player"
)

// nativeOrigin is the first native track number of both backends.
const nativeOrigin = 1

// Layout summarises where streams sit in the server's global numbering.
type Layout struct {
	// ExternalSubtitles counts side-loaded subtitle streams. The server
	// numbers them ahead of the container's own streams.
	ExternalSubtitles int
	// EmbeddedSubtitles counts container subtitle streams the server reports.
	EmbeddedSubtitles int
	// NativeEmbeddedSubtitles counts container subtitle tracks the player
	// exposes. It can exceed EmbeddedSubtitles when the library hides
	// embedded subtitle metadata.
	NativeEmbeddedSubtitles int
	// VideoBeforeAudio counts video streams ahead of the first audio stream.
	VideoBeforeAudio int

	embedded []positioned
}

type positioned struct {
	index int
	typ   jellyfin.StreamType
}

// NewLayout derives the layout of source as seen by a player exposing tracks.
func NewLayout(source *jellyfin.MediaSource, tracks []player.Track) Layout {
	var l Layout
	if source != nil {
		firstAudio := -1
		for _, st := range source.MediaStreams {
			if st.Type == jellyfin.StreamAudio && (firstAudio < 0 || st.Index < firstAudio) {
				firstAudio = st.Index
			}
		}
		for _, st := range source.MediaStreams {
			if st.Type == jellyfin.StreamSubtitle && st.DeliveredExternally() {
				l.ExternalSubtitles++
				continue
			}
			if st.Type == jellyfin.StreamSubtitle {
				l.EmbeddedSubtitles++
			}
			if st.Type == jellyfin.StreamVideo && firstAudio >= 0 && st.Index < firstAudio {
				l.VideoBeforeAudio++
			}
			l.embedded = append(l.embedded, positioned{index: st.Index, typ: st.Type})
		}
		sort.Slice(l.embedded, func(i, j int) bool { return l.embedded[i].index < l.embedded[j].index })
	}
	for _, tr := range tracks {
		if tr.Type == player.TrackText && !tr.External {
			l.NativeEmbeddedSubtitles++
		}
	}
	return l
}

// embeddedBefore counts embedded streams of the given types numbered below index.
func (l Layout) embeddedBefore(index int, types ...jellyfin.StreamType) int {
	n := 0
	for _, p := range l.embedded {
		if p.index >= index {
			break
		}
		for _, t := range types {
			if p.typ == t {
				n++
				break
			}
		}
	}
	return n
}

// IndexTranslator maps a server stream index to a backend's native track number.
type IndexTranslator interface {
	Backend() player.Backend
	NativeIndex(serverIndex int, t player.TrackType, external bool, layout Layout) int
}

// Media3Translator numbers external subtitles in a separate group, so every
// embedded track shifts down by the external count.
type Media3Translator struct{}

func (Media3Translator) Backend() player.Backend { return player.BackendMedia3 }

func (Media3Translator) NativeIndex(serverIndex int, _ player.TrackType, _ bool, layout Layout) int {
	return serverIndex - layout.ExternalSubtitles + nativeOrigin
}

// MPVTranslator numbers each track type contiguously; side-loaded subtitles
// follow the embedded ones.
type MPVTranslator struct{}

func (MPVTranslator) Backend() player.Backend { return player.BackendMPV }

func (MPVTranslator) NativeIndex(serverIndex int, t player.TrackType, external bool, layout Layout) int {
	switch t {
	case player.TrackAudio:
		return serverIndex - layout.ExternalSubtitles - layout.VideoBeforeAudio + nativeOrigin
	case player.TrackText:
		if external {
			embedded := max(layout.EmbeddedSubtitles, layout.NativeEmbeddedSubtitles)
			return serverIndex + embedded + nativeOrigin
		}
		before := layout.embeddedBefore(serverIndex, jellyfin.StreamVideo, jellyfin.StreamAudio)
		return serverIndex - layout.ExternalSubtitles - before + nativeOrigin
	default:
		return serverIndex - layout.ExternalSubtitles + nativeOrigin
	}
}

// TranslatorFor returns the translator of backend. Unknown backends use
// the Media3 numbering.
func TranslatorFor(backend player.Backend) IndexTranslator {
	if backend == player.BackendMPV {
		return MPVTranslator{}
	}
	return Media3Translator{}
}

// CalculateIndexToFind translates serverIndex for backend. It is pure.
func CalculateIndexToFind(serverIndex int, t player.TrackType, backend player.Backend, external bool, layout Layout) int {
	return TranslatorFor(backend).NativeIndex(serverIndex, t, external, layout)
}

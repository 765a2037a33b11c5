package youtube

import (
	"sort"
	"strings"
)

// SelectStream picks one concrete downloadable rendition out of a record's
// mirror streams. Pure: no network, no mutation of the input. Returns nil
// when the record has no usable rendition for the requested quality, in
// which case the caller falls back to the engine.
//
// For best quality only streams that carry their own audio are considered;
// video-only renditions are never paired with a separate audio track here.
func SelectStream(meta *VideoMetadata, quality Quality) *StreamDescriptor {
	bag := meta.streams
	if bag.Empty() {
		return nil
	}

	if bag.isPipedShape() {
		return selectPiped(bag, quality)
	}
	return selectInvidious(bag, quality, meta.mirrorType)
}

func selectPiped(bag StreamBag, quality Quality) *StreamDescriptor {
	if quality == QualityAudio {
		best := maxByBitrate(bag.AudioStreams)
		if best == nil {
			return nil
		}
		return descriptor(*best, MirrorPiped, true, false)
	}

	// Muxed renditions first; streams flagged hasAudio are the second
	// tier (some instances mark combined streams videoOnly anyway).
	var muxed, combined []MirrorStream
	for _, s := range bag.VideoStreams {
		if !s.VideoOnly {
			muxed = append(muxed, s)
		}
		if s.HasAudio {
			combined = append(combined, s)
		}
	}
	best := maxByQuality(muxed)
	if best == nil {
		best = maxByQuality(combined)
	}
	if best == nil {
		return nil
	}
	return descriptor(*best, MirrorPiped, false, false)
}

func selectInvidious(bag StreamBag, quality Quality, mt MirrorType) *StreamDescriptor {
	if mt == "" {
		mt = MirrorInvidious
	}

	if quality == QualityAudio {
		// Adaptive formats carry the dedicated audio tracks; fall back to
		// any audio-classified progressive stream.
		best := maxByBitrate(audioStreams(bag.AdaptiveFormats))
		if best == nil {
			best = maxByBitrate(audioStreams(bag.FormatStreams))
		}
		if best == nil {
			return nil
		}
		return descriptor(*best, mt, true, false)
	}

	// Progressive streams only, minus any audio-classified entries.
	var progressive []MirrorStream
	for _, s := range bag.FormatStreams {
		if !isAudioMime(s.mime()) {
			progressive = append(progressive, s)
		}
	}
	best := maxByQuality(progressive)
	if best == nil {
		return nil
	}
	return descriptor(*best, mt, false, false)
}

// maxByBitrate returns the stream with the highest bitrate, preferring
// averageBitrate when the plain field is absent. Ties keep source order.
func maxByBitrate(streams []MirrorStream) *MirrorStream {
	candidates := withURLs(streams)
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return effectiveBitrate(candidates[i]) > effectiveBitrate(candidates[j])
	})
	return &candidates[0]
}

// maxByQuality returns the stream with the highest quality score, breaking
// ties on pixel height. Remaining ties keep source order.
func maxByQuality(streams []MirrorStream) *MirrorStream {
	candidates := withURLs(streams)
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := qualityScore(candidates[i]), qualityScore(candidates[j])
		if si != sj {
			return si > sj
		}
		return candidates[i].Height > candidates[j].Height
	})
	return &candidates[0]
}

// isAudioMime classifies a mime hint as audio-only.
func isAudioMime(mime string) bool {
	mime = strings.ToLower(mime)
	return strings.Contains(mime, "audio") && !strings.Contains(mime, "video")
}

// audioStreams filters to streams whose mime type classifies as audio.
func audioStreams(streams []MirrorStream) []MirrorStream {
	var out []MirrorStream
	for _, s := range streams {
		if isAudioMime(s.mime()) {
			out = append(out, s)
		}
	}
	return out
}

// withURLs copies the streams that actually carry a URL, so sorting never
// reorders the caller's slice.
func withURLs(streams []MirrorStream) []MirrorStream {
	out := make([]MirrorStream, 0, len(streams))
	for _, s := range streams {
		if s.URL != "" {
			out = append(out, s)
		}
	}
	return out
}

func effectiveBitrate(s MirrorStream) int64 {
	if s.Bitrate != 0 {
		return int64(s.Bitrate)
	}
	return int64(s.AverageBitrate)
}

// qualityScore ranks a muxed stream by the digits of its quality label
// ("720p" beats "medium"), falling back to the pixel height.
func qualityScore(s MirrorStream) int {
	if n := labelDigits(s.QualityLabel); n > 0 {
		return n
	}
	if n := labelDigits(s.Quality); n > 0 {
		return n
	}
	return s.Height
}

// labelDigits extracts the leading numeric run of a quality label.
func labelDigits(label string) int {
	n := 0
	seen := false
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c < '0' || c > '9' {
			if seen {
				break
			}
			continue
		}
		n = n*10 + int(c-'0')
		seen = true
	}
	if !seen {
		return 0
	}
	return n
}

func descriptor(s MirrorStream, mt MirrorType, audioOnly, videoOnly bool) *StreamDescriptor {
	return &StreamDescriptor{
		URL:        s.URL,
		MimeType:   s.mime(),
		Container:  containerOf(s),
		Quality:    firstNonEmpty(s.QualityLabel, s.Quality),
		Bitrate:    effectiveBitrate(s),
		Height:     s.Height,
		AudioOnly:  audioOnly,
		VideoOnly:  videoOnly,
		MirrorType: mt,
	}
}

// containerOf prefers the explicit container field, then the mime subtype.
func containerOf(s MirrorStream) string {
	if s.Container != "" {
		return s.Container
	}
	mime := s.mime()
	if i := strings.Index(mime, "/"); i >= 0 {
		rest := mime[i+1:]
		if j := strings.IndexAny(rest, "; "); j >= 0 {
			rest = rest[:j]
		}
		return rest
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

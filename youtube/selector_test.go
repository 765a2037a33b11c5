package youtube

import "testing"

func pipedMeta(bag StreamBag) *VideoMetadata {
	return &VideoMetadata{Title: "t", mirrorType: MirrorPiped, streams: bag}
}

func invidiousMeta(bag StreamBag) *VideoMetadata {
	return &VideoMetadata{Title: "t", mirrorType: MirrorInvidious, streams: bag}
}

func TestSelectStreamPipedAudio(t *testing.T) {
	meta := pipedMeta(StreamBag{
		AudioStreams: []MirrorStream{
			{URL: "http://p/a64", Bitrate: 64000, MimeType: "audio/webm"},
			{URL: "http://p/a128", Bitrate: 128000, MimeType: "audio/mp4"},
		},
	})

	got := SelectStream(meta, QualityAudio)
	if got == nil {
		t.Fatal("SelectStream returned nil")
	}
	if got.URL != "http://p/a128" {
		t.Errorf("selected %s, want the 128k stream", got.URL)
	}
	if !got.AudioOnly {
		t.Error("audio selection not marked AudioOnly")
	}
	if got.MirrorType != MirrorPiped {
		t.Errorf("MirrorType = %s, want piped", got.MirrorType)
	}
}

func TestSelectStreamPipedBestPrefersMuxed(t *testing.T) {
	meta := pipedMeta(StreamBag{
		VideoStreams: []MirrorStream{
			{URL: "http://p/1080", QualityLabel: "1080p", VideoOnly: true},
			{URL: "http://p/720", QualityLabel: "720p"},
			{URL: "http://p/360", QualityLabel: "360p"},
		},
	})

	got := SelectStream(meta, QualityBest)
	if got == nil {
		t.Fatal("SelectStream returned nil")
	}
	if got.URL != "http://p/720" {
		t.Errorf("selected %s, want the muxed 720p stream", got.URL)
	}
}

func TestSelectStreamPipedNoMuxedFallsBackToHasAudio(t *testing.T) {
	// Some instances mark combined streams videoOnly but flag hasAudio.
	meta := pipedMeta(StreamBag{
		VideoStreams: []MirrorStream{
			{URL: "http://p/1080", QualityLabel: "1080p", VideoOnly: true, HasAudio: true},
			{URL: "http://p/720", QualityLabel: "720p", VideoOnly: true},
		},
	})

	got := SelectStream(meta, QualityBest)
	if got == nil {
		t.Fatal("SelectStream returned nil")
	}
	if got.URL != "http://p/1080" {
		t.Errorf("selected %s, want the hasAudio 1080p stream", got.URL)
	}
}

func TestSelectStreamPipedNoPlayableRendition(t *testing.T) {
	meta := pipedMeta(StreamBag{
		VideoStreams: []MirrorStream{
			{URL: "http://p/1080", QualityLabel: "1080p", VideoOnly: true},
		},
	})
	if got := SelectStream(meta, QualityBest); got != nil {
		t.Errorf("SelectStream = %+v, want nil when no stream carries audio", got)
	}
}

func TestSelectStreamInvidiousBestSkipsAudioFormats(t *testing.T) {
	meta := invidiousMeta(StreamBag{
		FormatStreams: []MirrorStream{
			{URL: "http://i/audio", Type: "audio/mp4", QualityLabel: "9999p"},
			{URL: "http://i/360", Type: "video/mp4", Quality: "medium", Height: 360},
		},
	})

	got := SelectStream(meta, QualityBest)
	if got == nil {
		t.Fatal("SelectStream returned nil")
	}
	if got.URL != "http://i/360" {
		t.Errorf("selected %s, want the video format stream", got.URL)
	}
}

func TestSelectStreamHeightBreaksScoreTies(t *testing.T) {
	meta := invidiousMeta(StreamBag{
		FormatStreams: []MirrorStream{
			{URL: "http://i/low", QualityLabel: "720p", Height: 480},
			{URL: "http://i/high", QualityLabel: "720p", Height: 720},
		},
	})

	got := SelectStream(meta, QualityBest)
	if got == nil || got.URL != "http://i/high" {
		t.Errorf("got %+v, want the taller stream on equal labels", got)
	}
}

func TestSelectStreamInvidiousBest(t *testing.T) {
	meta := invidiousMeta(StreamBag{
		FormatStreams: []MirrorStream{
			{URL: "http://i/medium", Quality: "medium", Height: 360},
			{URL: "http://i/720", QualityLabel: "720p", Container: "mp4"},
		},
		AdaptiveFormats: []MirrorStream{
			{URL: "http://i/adaptive1080", QualityLabel: "1080p"},
		},
	})

	got := SelectStream(meta, QualityBest)
	if got == nil {
		t.Fatal("SelectStream returned nil")
	}
	if got.URL != "http://i/720" {
		t.Errorf("selected %s, want the 720p format stream", got.URL)
	}
	if got.Container != "mp4" {
		t.Errorf("Container = %q, want mp4", got.Container)
	}
}

func TestSelectStreamInvidiousAudio(t *testing.T) {
	meta := invidiousMeta(StreamBag{
		AdaptiveFormats: []MirrorStream{
			{URL: "http://i/video", Type: "video/mp4", Bitrate: 900000},
			{URL: "http://i/audio-low", Type: "audio/webm", Bitrate: FlexInt(0), AverageBitrate: 60000},
			{URL: "http://i/audio-high", Type: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 129000},
		},
	})

	got := SelectStream(meta, QualityAudio)
	if got == nil {
		t.Fatal("SelectStream returned nil")
	}
	if got.URL != "http://i/audio-high" {
		t.Errorf("selected %s, want the highest-bitrate audio stream", got.URL)
	}
}

func TestSelectStreamInvidiousAudioFallsBackToFormats(t *testing.T) {
	meta := invidiousMeta(StreamBag{
		FormatStreams: []MirrorStream{
			{URL: "http://i/video", Type: "video/mp4"},
			{URL: "http://i/audio", Type: "audio/mp4", Bitrate: 96000},
		},
	})

	got := SelectStream(meta, QualityAudio)
	if got == nil || got.URL != "http://i/audio" {
		t.Errorf("got %+v, want the audio-classified format stream", got)
	}
}

func TestSelectStreamEmptyBag(t *testing.T) {
	if got := SelectStream(&VideoMetadata{Title: "t"}, QualityBest); got != nil {
		t.Errorf("SelectStream = %+v, want nil for empty bag", got)
	}
}

func TestSelectStreamDeterministic(t *testing.T) {
	meta := invidiousMeta(StreamBag{
		FormatStreams: []MirrorStream{
			{URL: "http://i/a", QualityLabel: "720p"},
			{URL: "http://i/b", QualityLabel: "720p"},
		},
	})

	first := SelectStream(meta, QualityBest)
	for i := 0; i < 10; i++ {
		again := SelectStream(meta, QualityBest)
		if again.URL != first.URL {
			t.Fatalf("selection changed between calls: %s vs %s", first.URL, again.URL)
		}
	}
	// Ties keep source order.
	if first.URL != "http://i/a" {
		t.Errorf("tie broke to %s, want first entry", first.URL)
	}
}

func TestLabelDigits(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"720p", 720},
		{"1080p60", 1080},
		{"hd720", 720},
		{"medium", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := labelDigits(tt.label); got != tt.want {
			t.Errorf("labelDigits(%q) = %d, want %d", tt.label, got, tt.want)
		}
	}
}

package media

// Combine builds the stream fed to the encoder: the video tracks of video
// plus audio when non-nil. originalSources is kept as a back-reference for
// teardown lookup; Combine never stops any track.
func Combine(video *Stream, audio Track, originalSources []*Stream) (*Stream, error) {
	if video == nil {
		return nil, ErrNoVideoTrack
	}
	vt := video.VideoTracks()
	if len(vt) == 0 {
		return nil, ErrNoVideoTrack
	}

	out := NewStream(vt...)
	if audio != nil {
		out.AddTrack(audio)
	}
	for _, src := range originalSources {
		if src != nil {
			out.sources = append(out.sources, src)
		}
	}
	return out, nil
}

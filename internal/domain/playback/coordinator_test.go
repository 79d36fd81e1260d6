package playback_test

import (
	"testing"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
	"github.com/lyrebird-audio/lyrebird/internal/domain/playback"
)

func TestPodcastPausesMusic(t *testing.T) {
	h := newHarness(t)
	queue := queueOf(t, t.TempDir(), 200, "a", "b", "c", "d", "e")
	ep := episode(t, t.TempDir(), "ep", 3600, false)

	h.music.Play(queue, 1)
	if !h.music.IsPlaying() {
		t.Fatal("music should be playing")
	}

	h.podcast.Play(ep)

	if h.music.IsPlaying() {
		t.Error("music must be paused when podcast starts")
	}
	if !h.podcast.IsPlaying() {
		t.Error("podcast should be playing")
	}
	if st := h.music.Status(); st.State != playback.StatePaused {
		t.Errorf("expected music paused, got %s", st.State)
	}
}

func TestMusicPausesPodcast(t *testing.T) {
	h := newHarness(t)
	queue := queueOf(t, t.TempDir(), 200, "a")
	ep := episode(t, t.TempDir(), "ep", 3600, false)

	h.podcast.Play(ep)
	h.music.Play(queue, 0)

	if h.podcast.IsPlaying() {
		t.Error("podcast must be paused when music starts")
	}
	if !h.music.IsPlaying() {
		t.Error("music should be playing")
	}
}

func TestNeverDualActive(t *testing.T) {
	h := newHarness(t)
	queue := queueOf(t, t.TempDir(), 200, "a", "b")
	ep := episode(t, t.TempDir(), "ep", 3600, false)

	check := func(step string) {
		if h.music.IsPlaying() && h.podcast.IsPlaying() {
			t.Fatalf("dual-active after %s", step)
		}
	}

	h.music.Play(queue, 0)
	check("music play")
	h.podcast.Play(ep)
	check("podcast play")
	h.music.Resume()
	check("music resume")
	h.podcast.Resume()
	check("podcast resume")
	h.music.Play(queue, 1)
	check("music replay")
	h.podcast.Play(ep)
	check("podcast replay")
}

func TestActivateIsIdempotentButStillBroadcasts(t *testing.T) {
	bus := playback.NewBus()
	coord := playback.NewCoordinator(bus)

	var activations []catalog.MediaKind
	unsubscribe := bus.Subscribe(func(e playback.Event) {
		if a, ok := e.(playback.KindActivated); ok {
			activations = append(activations, a.Kind)
		}
	})
	defer unsubscribe()

	coord.Activate(catalog.KindMusic)
	coord.Activate(catalog.KindMusic)

	if len(activations) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(activations))
	}
	if coord.Active() != catalog.KindMusic {
		t.Errorf("expected music active, got %q", coord.Active())
	}
}

func TestResumeReclaimsSession(t *testing.T) {
	h := newHarness(t)
	queue := queueOf(t, t.TempDir(), 200, "a")
	ep := episode(t, t.TempDir(), "ep", 3600, false)

	h.music.Play(queue, 0)
	h.podcast.Play(ep)
	h.music.Resume()

	if h.podcast.IsPlaying() {
		t.Error("podcast must be paused when music resumes")
	}
	if !h.music.IsPlaying() {
		t.Error("music should be playing after resume")
	}
}

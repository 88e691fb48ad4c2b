package vidget

import "testing"

func TestPresenterMilestones(t *testing.T) {
	view := NewViewModel()
	p := NewPresenter(view)

	steps := []struct {
		name  string
		apply func()
		want  Progress
	}{
		{"reset", p.Reset, Progress{0, StatusInitializing, ProgressStateIdle}},
		{"start", p.Start, Progress{10, StatusInitializing, ProgressStateStarted}},
		{"ready", p.Ready, Progress{100, StatusReady, ProgressStateReady}},
		{"fail", p.Fail, Progress{0, StatusFailed, ProgressStateFailed}},
	}
	for _, s := range steps {
		s.apply()
		if got := p.Current(); got != s.want {
			t.Errorf("%s: Current() = %+v, want %+v", s.name, got, s.want)
		}
		if got, _ := view.Progress(); got != s.want {
			t.Errorf("%s: view shows %+v, want %+v", s.name, got, s.want)
		}
	}
}

func TestPresenterClamps(t *testing.T) {
	p := NewPresenter(nil)
	p.Set(150, "too far")
	if got := p.Current().Percent; got != 100 {
		t.Errorf("Set(150) gave %d, want 100", got)
	}
	p.Set(-5, "too low")
	if got := p.Current().Percent; got != 0 {
		t.Errorf("Set(-5) gave %d, want 0", got)
	}
}

type countingView struct {
	*ViewModel
	progressWrites int
}

func (v *countingView) SetProgress(p Progress) {
	v.progressWrites++
	v.ViewModel.SetProgress(p)
}

func TestPresenterIdempotentRender(t *testing.T) {
	view := &countingView{ViewModel: NewViewModel()}
	p := NewPresenter(view)
	p.Ready()
	first, _ := view.Progress()
	p.Ready()
	second, _ := view.Progress()

	if first != second {
		t.Errorf("re-rendering changed the view: %+v then %+v", first, second)
	}
	if view.progressWrites != 2 {
		t.Errorf("expected 2 writes, got %d", view.progressWrites)
	}
}

package selection

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stevecastle/galleria/focus"
)

func TestPublishLatestOnly(t *testing.T) {
	var tr Tracker

	first := tr.Select()
	second := tr.Select()

	if tr.Publish(first, focus.Result{Score: 10}) {
		t.Error("Publish for a superseded ticket was accepted")
	}
	if _, _, ok := tr.Current(); ok {
		t.Error("Current reports data after only a stale publish")
	}

	if !tr.Publish(second, focus.Result{Score: 99}) {
		t.Fatal("Publish for the latest ticket was rejected")
	}
	res, ticket, ok := tr.Current()
	if !ok || ticket != second || res.Score != 99 {
		t.Errorf("Current = %+v, %d, %v; want score 99 for ticket %d", res, ticket, ok, second)
	}

	// A late result for the old pick must not replace the new one.
	if tr.Publish(first, focus.Result{Score: 1}) {
		t.Error("late stale publish accepted")
	}
	if res, _, _ := tr.Current(); res.Score != 99 {
		t.Errorf("Current score = %v after stale publish; want 99", res.Score)
	}

	st := tr.Stats()
	if st.Selections != 2 || st.Accepted != 1 || st.Dropped != 2 {
		t.Errorf("Stats = %+v; want 2 selections, 1 accepted, 2 dropped", st)
	}
}

func TestSelectClearsResult(t *testing.T) {
	var tr Tracker
	tk := tr.Select()
	tr.Publish(tk, focus.Result{Score: 5, IsBlurred: true})

	tr.Clear()
	if _, _, ok := tr.Current(); ok {
		t.Error("Current still has data after Clear")
	}
	if _, latest, _ := tr.Current(); latest == tk {
		t.Error("old ticket still latest after Clear")
	}
	if tr.Publish(tk, focus.Result{Score: 900}) {
		t.Error("publish for the cleared ticket was accepted")
	}
}

func uniform(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 128, 128, 128, 255
	}
	return img
}

func stripes(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if x%2 == 0 {
				v = 255
			}
			img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

func TestEvaluateStaleDiscarded(t *testing.T) {
	var tr Tracker
	c := focus.NewClassifier(focus.DefaultConfig())

	old := tr.Select()
	newer := tr.Select()

	// The newer pick finishes first; the older one resolves afterwards.
	nOut := <-tr.Evaluate(context.Background(), newer, stripes(32, 32), c)
	oOut := <-tr.Evaluate(context.Background(), old, uniform(32, 32), c)

	if !nOut.Accepted {
		t.Error("latest evaluation not accepted")
	}
	if oOut.Accepted {
		t.Error("stale evaluation accepted")
	}
	res, ticket, ok := tr.Current()
	if !ok || ticket != newer {
		t.Fatalf("Current ticket = %d ok=%v; want %d", ticket, ok, newer)
	}
	if res.IsBlurred {
		t.Errorf("displayed result %+v comes from the stale uniform image", res)
	}
}

func TestEvaluateCancelled(t *testing.T) {
	var tr Tracker
	c := focus.NewClassifier(focus.DefaultConfig())
	tk := tr.Select()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := <-tr.Evaluate(ctx, tk, uniform(8, 8), c)
	if out.Accepted {
		t.Error("cancelled evaluation was published")
	}
	if _, _, ok := tr.Current(); ok {
		t.Error("Current has data after cancelled evaluation")
	}
}

func TestConcurrentSelections(t *testing.T) {
	var tr Tracker
	c := focus.NewClassifier(focus.DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk := tr.Select()
			<-tr.Evaluate(context.Background(), tk, stripes(16, 16), c)
		}()
	}
	wg.Wait()

	final := tr.Select()
	out := <-tr.Evaluate(context.Background(), final, uniform(16, 16), c)
	if !out.Accepted {
		t.Fatal("final evaluation not accepted")
	}
	res, ticket, ok := tr.Current()
	if !ok || ticket != final || !res.IsBlurred {
		t.Errorf("Current = %+v, %d, %v; want the uniform result for ticket %d", res, ticket, ok, final)
	}
	st := tr.Stats()
	if st.Selections != 21 {
		t.Errorf("Selections = %d; want 21", st.Selections)
	}
	if st.Accepted+st.Dropped != 21 {
		t.Errorf("Accepted+Dropped = %d; want 21", st.Accepted+st.Dropped)
	}
}

func TestRegistry(t *testing.T) {
	var r Registry
	a := r.For("alice")
	if r.For("alice") != a {
		t.Error("For returned a different tracker for the same key")
	}
	if r.For("bob") == a {
		t.Error("different keys share a tracker")
	}
	r.Forget("alice")
	if r.For("alice") == a {
		t.Error("Forget did not drop the tracker")
	}
}

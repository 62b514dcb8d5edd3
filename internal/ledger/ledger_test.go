package ledger

import (
	"fmt"
	"testing"

	"github.com/podiumlabs/podium-core/internal/slide"
)

func TestStyleReferencesCapAtTwo(t *testing.T) {
	l := New()
	var first, second slide.Slide
	for i := 0; i < 6; i++ {
		s := slide.New(slide.Content{Headline: fmt.Sprintf("s%d", i)}, slide.SourceExploratory)
		switch i {
		case 0:
			first = s
		case 1:
			second = s
		}
		l.Append(s)
	}
	refs := l.StyleReferences()
	if len(refs) != 2 {
		t.Fatalf("expected 2 style references, got %d", len(refs))
	}
	if refs[0].ID != first.ID || refs[1].ID != second.ID {
		t.Fatalf("style references should be the first two accepted slides")
	}
	if l.Len() != 6 {
		t.Fatalf("expected full history retained, got %d", l.Len())
	}
}

func TestAppendDedupsByID(t *testing.T) {
	l := New()
	s := slide.New(slide.Content{Headline: "dup"}, slide.SourceAudience)
	l.Append(s)
	l.Append(s)
	if l.Len() != 1 {
		t.Fatalf("expected one entry after duplicate append, got %d", l.Len())
	}
}

func TestRecent(t *testing.T) {
	l := New()
	for i := 0; i < 5; i++ {
		l.Append(slide.New(slide.Content{Headline: fmt.Sprintf("s%d", i)}, slide.SourceExploratory))
	}
	recent := l.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent entries, got %d", len(recent))
	}
	if recent[2].Headline != "s4" {
		t.Fatalf("expected most recent last, got %q", recent[2].Headline)
	}
	if got := l.Recent(10); len(got) != 5 {
		t.Fatalf("expected whole history when n exceeds length, got %d", len(got))
	}
}

func TestReset(t *testing.T) {
	l := New()
	l.Append(slide.New(slide.Content{Headline: "x"}, slide.SourceExploratory))
	l.Reset()
	if l.Len() != 0 || len(l.StyleReferences()) != 0 {
		t.Fatal("expected empty ledger after reset")
	}
}

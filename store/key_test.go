package store

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Ref
		wantErr bool
	}{
		{in: "wiki:space.page", want: Ref{Namespace: "wiki", ID: "space.page"}},
		{in: "tenant-1:doc", want: Ref{Namespace: "tenant-1", ID: "doc"}},
		{in: "wiki", wantErr: true},
		{in: ":page", wantErr: true},
		{in: "wiki:", wantErr: true},
		{in: "wiki:space:page", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseRef(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidRef) {
				t.Fatalf("ParseRef(%q) err = %v, want ErrInvalidRef", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseRef(%q) = %+v, %v", tt.in, got, err)
		}
		if got.String() != tt.in {
			t.Fatalf("String() = %q, want %q", got.String(), tt.in)
		}
	}
}

func TestCacheKey_Forms(t *testing.T) {
	t.Parallel()

	ref := Ref{Namespace: "wiki", ID: "space.page"}
	tests := []struct {
		lang, def, specific string
	}{
		{lang: "", def: "en", specific: "wiki:space.page"},
		{lang: "en", def: "en", specific: "wiki:space.page"},
		{lang: "de", def: "en", specific: "wiki:space.page:de"},
		{lang: "de", def: "", specific: "wiki:space.page:de"},
	}
	for _, tt := range tests {
		k := KeyOf(ref, tt.lang)
		if k.Coarse() != "wiki:space.page" {
			t.Fatalf("Coarse() = %q", k.Coarse())
		}
		if got := k.Specific(tt.def); got != tt.specific {
			t.Fatalf("KeyOf(%q).Specific(%q) = %q, want %q", tt.lang, tt.def, got, tt.specific)
		}
	}
	if got := KeyOf(ref, "en").String(); got != "wiki:space.page:en" {
		t.Fatalf("String() = %q, want the uncollapsed key", got)
	}
}

func TestDocument_Clone(t *testing.T) {
	t.Parallel()

	prev := Ref{Namespace: "wiki", ID: "old"}
	d := &Document{Ref: page, Title: "Home", PreviousRef: &prev, fromCache: true}
	c := d.Clone()
	if c == d || c.FromCache() {
		t.Fatal("Clone must return a fresh, uncached instance")
	}
	c.Title = "changed"
	c.PreviousRef.ID = "changed"
	if d.Title != "Home" || d.PreviousRef.ID != "old" {
		t.Fatal("mutating the clone must not touch the original")
	}
	if (*Document)(nil).Clone() != nil {
		t.Fatal("nil Clone must be nil")
	}
}

func TestInvalidateResult_String(t *testing.T) {
	t.Parallel()

	want := []string{"miss", "removed", "canceled_clean", "canceled_multiple", "cancel_failed"}
	for r := Miss; r <= CancelFailed; r++ {
		if r.String() != want[r] {
			t.Fatalf("%d.String() = %q, want %q", r, r.String(), want[r])
		}
	}
	if worse(CanceledClean, Removed) != CanceledClean || worse(Miss, CancelFailed) != CancelFailed {
		t.Fatal("worse must keep the more severe result")
	}
}

// Specific never produces a key of another entity and collapses exactly
// when the language is empty or the default.
func FuzzCacheKey_Specific(f *testing.F) {
	f.Add("wiki", "space.page", "", "en")
	f.Add("wiki", "space.page", "en", "en")
	f.Add("wiki", "space.page", "de", "en")

	f.Fuzz(func(t *testing.T, ns, id, lang, def string) {
		ref := Ref{Namespace: ns, ID: id}
		if ref.validate() != nil {
			t.Skip()
		}
		k := KeyOf(ref, lang)
		got := k.Specific(def)
		if lang == "" || lang == def {
			if got != k.Coarse() {
				t.Fatalf("Specific = %q, want coarse %q", got, k.Coarse())
			}
			return
		}
		if !strings.HasPrefix(got, k.prefix()) || got[len(k.prefix()):] != lang {
			t.Fatalf("Specific = %q, want %q + %q", got, k.prefix(), lang)
		}
	})
}

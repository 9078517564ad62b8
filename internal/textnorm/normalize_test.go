package textnorm

import (
	"reflect"
	"testing"
)

func TestComparison(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Je m'appelle Marie.", "je m appelle marie"},
		{"l'école", "l ecole"},
		{"Où est la bibliothèque ?", "ou est la bibliotheque"},
		{"  double   espace  ", "double espace"},
		{"«Bonjour», dit-elle!", "bonjour ditelle"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Comparison(tc.in); got != tc.want {
			t.Errorf("Comparison(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDisplayKeepsAccentsAndElisions(t *testing.T) {
	if got := Display("L'école était fermée."); got != "l'école était fermée" {
		t.Fatalf("Display = %q", got)
	}
	if got := Display("Je m'appelle Marie"); got != "je m'appelle marie" {
		t.Fatalf("Display = %q", got)
	}
}

func TestWords(t *testing.T) {
	got := Words(Comparison("Je m'appelle Marie"))
	want := []string{"je", "m", "appelle", "marie"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("comparison words = %v, want %v", got, want)
	}
	disp := Words(Display("Je m'appelle Marie"))
	wantDisp := []string{"je", "m'appelle", "marie"}
	if !reflect.DeepEqual(disp, wantDisp) {
		t.Fatalf("display words = %v, want %v", disp, wantDisp)
	}
}

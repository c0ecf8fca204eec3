package filter

import (
	"context"
	"strings"
	"testing"
)

func TestDeclarationsSplitsGoFile(t *testing.T) {
	src := "package main\n\nimport \"fmt\"\n\ntype T struct{}\n\nfunc (t T) M() {}\n\nfunc A() { fmt.Println() }\n"
	d := Declarations{}
	got, err := d.RewriteBlob(context.Background(), newBlob("main.go", src))
	if err != nil {
		t.Fatalf("RewriteBlob: %v", err)
	}
	want := []string{"main.go#T", "main.go#T.M", "main.go#A"}
	if strings.Join(names(got), ",") != strings.Join(want, ",") {
		t.Fatalf("blobs = %v, want %v", names(got), want)
	}
	if body := content(t, got[2]); body != "func A() { fmt.Println() }\n" {
		t.Errorf("A body = %q", body)
	}
	if body := content(t, got[1]); !strings.HasPrefix(body, "func (t T) M()") {
		t.Errorf("M body = %q", body)
	}
}

func TestDeclarationsKeepOriginal(t *testing.T) {
	d := Declarations{KeepOriginal: true, Patterns: MustCompile("*.go")}
	got, err := d.RewriteBlob(context.Background(), newBlob("a.go", "package a\n\nfunc F() {}\n\nfunc F2() {}\n"))
	if err != nil {
		t.Fatalf("RewriteBlob: %v", err)
	}
	want := []string{"a.go", "a.go#F", "a.go#F2"}
	if strings.Join(names(got), ",") != strings.Join(want, ",") {
		t.Fatalf("blobs = %v, want %v", names(got), want)
	}
	if got[0].Modified() {
		t.Error("original blob marked modified")
	}
}

func TestDeclarationsPassesThroughUnknownLanguages(t *testing.T) {
	got, err := Declarations{}.RewriteBlob(context.Background(), newBlob("notes.unknownext", "whatever"))
	if err != nil {
		t.Fatalf("RewriteBlob: %v", err)
	}
	if len(got) != 1 || got[0].Name != "notes.unknownext" {
		t.Errorf("blobs = %v", names(got))
	}
}

func TestDeclarationsNumbersDuplicates(t *testing.T) {
	src := "package a\n\nfunc init() {}\n\nfunc init() {}\n"
	got, err := Declarations{}.RewriteBlob(context.Background(), newBlob("a.go", src))
	if err != nil {
		t.Fatalf("RewriteBlob: %v", err)
	}
	want := []string{"a.go#init", "a.go#init~2"}
	if strings.Join(names(got), ",") != strings.Join(want, ",") {
		t.Errorf("blobs = %v, want %v", names(got), want)
	}
}

package filter

import (
	"context"
	"strings"
	"testing"

	"github.com/odvcencio/reforge/pkg/object"
	"github.com/odvcencio/reforge/pkg/rewrite"
)

func TestParseMailmap(t *testing.T) {
	m, err := ParseMailmap(strings.NewReader(`
# team
Ada Lovelace <ada@old.example>
<grace@new.example> <grace@old.example>
Alan Turing <alan@new.example> <ALAN@old.example>
Linus <linus@new.example> lt <lt@old.example>
`))
	if err != nil {
		t.Fatalf("ParseMailmap: %v", err)
	}
	tests := []struct {
		in   object.Ident
		want object.Ident
	}{
		{object.Ident{Name: "ada", Email: "ada@old.example", When: 5}, object.Ident{Name: "Ada Lovelace", Email: "ada@old.example", When: 5}},
		{object.Ident{Name: "Grace", Email: "grace@old.example"}, object.Ident{Name: "Grace", Email: "grace@new.example"}},
		{object.Ident{Name: "at", Email: "alan@OLD.example"}, object.Ident{Name: "Alan Turing", Email: "alan@new.example"}},
		{object.Ident{Name: "lt", Email: "lt@old.example"}, object.Ident{Name: "Linus", Email: "linus@new.example"}},
		{object.Ident{Name: "x", Email: "x@example.com"}, object.Ident{Name: "x", Email: "x@example.com"}},
	}
	for _, tt := range tests {
		got, err := m.RewritePerson(context.Background(), tt.in)
		if err != nil {
			t.Fatalf("RewritePerson: %v", err)
		}
		if got != tt.want {
			t.Errorf("RewritePerson(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseMailmapRejectsLineWithoutEmail(t *testing.T) {
	if _, err := ParseMailmap(strings.NewReader("just a name\n")); err == nil {
		t.Fatal("ParseMailmap accepted a line without an email")
	}
}

func TestAnonymizer(t *testing.T) {
	ctx := context.Background()
	a := Anonymizer{Salt: "s1", Paths: true}
	p := object.Ident{Name: "Ada", Email: "Ada@Example.com", When: 42, Timezone: "+0100"}

	got1, _ := a.RewritePerson(ctx, p)
	got2, _ := a.RewritePerson(ctx, object.Ident{Name: "Ada", Email: "ada@example.com"})
	if got1.Name == "Ada" || !strings.HasPrefix(got1.Name, "user-") {
		t.Errorf("name = %q, want user- token", got1.Name)
	}
	if got1.Email != got2.Email || !strings.HasSuffix(got1.Email, "@anonymous.invalid") {
		t.Errorf("emails %q and %q should be the same token", got1.Email, got2.Email)
	}
	if got1.When != 42 || got1.Timezone != "+0100" {
		t.Errorf("time changed: %+v", got1)
	}
	other, _ := Anonymizer{Salt: "s2"}.RewritePerson(ctx, p)
	if other.Name == got1.Name {
		t.Error("different salts produced the same token")
	}

	file, _ := a.RewriteName(ctx, rewrite.Entry{Name: "secret-plan.txt", Mode: object.ModeFile})
	if !strings.HasPrefix(file, "f-") || !strings.HasSuffix(file, ".txt") || strings.Contains(file, "secret") {
		t.Errorf("file name = %q", file)
	}
	dir, _ := a.RewriteName(ctx, rewrite.Entry{Name: "secret", Mode: object.ModeTree})
	if !strings.HasPrefix(dir, "d-") {
		t.Errorf("dir name = %q", dir)
	}
	kept, _ := Anonymizer{}.RewriteName(ctx, rewrite.Entry{Name: "secret", Mode: object.ModeTree})
	if kept != "secret" {
		t.Errorf("name rewritten without Paths: %q", kept)
	}
}

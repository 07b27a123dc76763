package descriptor

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *Signature
	}{
		{
			name: "no params returns int",
			in:   "()I",
			want: &Signature{Return: Type{Kind: Int}},
		},
		{
			name: "void with primitives",
			in:   "(IJZ)V",
			want: &Signature{
				Params: []Type{{Kind: Int}, {Kind: Long}, {Kind: Boolean}},
				Return: Type{Kind: Void},
			},
		},
		{
			name: "object and array",
			in:   "(Lpkg/Foo;[[I)Ljava/lang/String;",
			want: &Signature{
				Params: []Type{ObjectType("pkg/Foo"), ArrayOf(ArrayOf(Type{Kind: Int}))},
				Return: ObjectType("java/lang/String"),
			},
		},
		{
			name: "nested class name",
			in:   "()Lpkg/Type$Sam;",
			want: &Signature{Return: ObjectType("pkg/Type$Sam")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if err != nil {
				t.Fatalf("ParseMethod(%q): %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseMethod(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"()I",
		"()V",
		"(I)V",
		"(Lpkg/Foo;)I",
		"(JDF[Ljava/lang/Object;)[[B",
		"(Lbasic/LambdaA;Ljava/lang/Integer;)Ljava/lang/String;",
		"I",
		"Ljava/lang/Runnable;",
		"[J",
	}
	for _, in := range inputs {
		sig, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got := sig.String(); got != in {
			t.Errorf("round trip: got %q, want %q", got, in)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	inputs := []string{
		"",
		"(",
		"()",
		"(I",
		"(Q)V",
		"(Lpkg/Foo)V",
		"(L;)V",
		"()IV",
		"(Lpkg.Foo;)V",
		"[",
		"()[V",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			var mse *MalformedSignatureError
			if !errors.As(err, &mse) {
				t.Fatalf("Parse(%q): got %v, want MalformedSignatureError", in, err)
			}
		})
	}
}

func TestWithLeadingParam(t *testing.T) {
	sig, err := ParseMethod("(I)Ljava/lang/String;")
	if err != nil {
		t.Fatal(err)
	}
	got := sig.WithLeadingParam(ObjectType("pkg/Foo")).String()
	if want := "(Lpkg/Foo;I)Ljava/lang/String;"; got != want {
		t.Errorf("WithLeadingParam: got %q, want %q", got, want)
	}
	// original is untouched
	if sig.String() != "(I)Ljava/lang/String;" {
		t.Errorf("original modified: %q", sig.String())
	}
}

func TestReturnOnlyLeadingParam(t *testing.T) {
	sig, err := Parse("I")
	if err != nil {
		t.Fatal(err)
	}
	if got := sig.WithLeadingParam(ObjectType("pkg/Foo")).String(); got != "(Lpkg/Foo;)I" {
		t.Errorf("got %q, want %q", got, "(Lpkg/Foo;)I")
	}
}

func TestSplitNameAndDescriptor(t *testing.T) {
	name, desc, err := SplitNameAndDescriptor("m()Lpkg/Type$Sam;")
	if err != nil {
		t.Fatal(err)
	}
	if name != "m" || desc != "()Lpkg/Type$Sam;" {
		t.Errorf("got (%q, %q), want (%q, %q)", name, desc, "m", "()Lpkg/Type$Sam;")
	}

	for _, in := range []string{"()V", "run", ""} {
		if _, _, err := SplitNameAndDescriptor(in); err == nil {
			t.Errorf("SplitNameAndDescriptor(%q): expected error", in)
		}
	}
}

func TestClassNamesAndSlots(t *testing.T) {
	sig, err := ParseMethod("(JLpkg/A;[Lpkg/B;D)Lpkg/C;")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"pkg/A", "pkg/B", "pkg/C"}, sig.ClassNames()); diff != "" {
		t.Errorf("ClassNames mismatch (-want +got):\n%s", diff)
	}
	if got := sig.ParamSlots(); got != 6 {
		t.Errorf("ParamSlots: got %d, want 6", got)
	}
	if got := sig.Params[2].JavaName(); got != "pkg.B[]" {
		t.Errorf("JavaName: got %q, want %q", got, "pkg.B[]")
	}
}

package diagnose

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

const syntaxTrace = `Traceback (most recent call last):
  File "/tmp/mender-run-1/harness.py", line 27, in run
    module = load(artifact_path, module_name)
  File "<frozen importlib._bootstrap_external>", line 1017, in source_to_code
  File "/tmp/mender-run-1/artifact_ab12.py", line 1
    def add(a,b)
                ^
SyntaxError: expected ':'
`

const nameTrace = `Traceback (most recent call last):
  File "/tmp/mender-run-2/harness.py", line 20, in load
    spec.loader.exec_module(module)
  File "<frozen importlib._bootstrap_external>", line 940, in exec_module
  File "<frozen importlib._bootstrap>", line 241, in _call_with_frames_removed
  File "/tmp/mender-run-2/artifact_cd34.py", line 6, in <module>
    print(x)
          ^
NameError: name 'x' is not defined
`

const assertionTrace = `test_add (mender_artifact_ef56.TestAdd.test_add):
Traceback (most recent call last):
  File "/tmp/mender-run-3/artifact_ef56.py", line 9, in test_add
    self.assertEqual(add(2, 3), 5)
AssertionError: -1 != 5
`

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Descriptor
	}{
		{
			name: "syntax error",
			in:   syntaxTrace,
			want: Descriptor{
				Kind:     strp("SyntaxError"),
				Message:  strp("SyntaxError: expected ':'"),
				Location: intp(1),
				Tail:     "SyntaxError: expected ':'",
				Category: CategorySyntax,
			},
		},
		{
			name: "name error at module scope",
			in:   nameTrace,
			want: Descriptor{
				Kind:     strp("NameError"),
				Message:  strp("NameError: name 'x' is not defined"),
				Location: intp(6),
				Tail:     "NameError: name 'x' is not defined",
				Category: CategoryUndefinedName,
			},
		},
		{
			name: "assertion failure",
			in:   assertionTrace,
			want: Descriptor{
				Kind:     strp("AssertionError"),
				Message:  strp("AssertionError: -1 != 5"),
				Location: intp(9),
				Tail:     "AssertionError: -1 != 5",
				Category: CategoryAssertion,
			},
		},
		{
			name: "timeout without frames",
			in:   "TimeoutError: artifact execution exceeded 10s",
			want: Descriptor{
				Kind:     strp("TimeoutError"),
				Tail:     "TimeoutError: artifact execution exceeded 10s",
				Category: CategoryTimeout,
			},
		},
		{
			name: "indentation beats syntax",
			in:   "  File \"a.py\", line 3\n    return 1\nIndentationError: unexpected indent",
			want: Descriptor{
				Kind:     strp("IndentationError"),
				Message:  strp("IndentationError: unexpected indent"),
				Location: intp(3),
				Tail:     "IndentationError: unexpected indent",
				Category: CategoryIndentation,
			},
		},
		{
			name: "dotted exception without message",
			in:   "  File \"a.py\", line 4, in f\n    raise Boom\nerrors.BoomException",
			want: Descriptor{
				Kind:     strp("errors.BoomException"),
				Message:  strp("errors.BoomException"),
				Location: intp(4),
				Tail:     "errors.BoomException",
				Category: CategoryUnknown,
			},
		},
		{
			name: "module not found",
			in:   "ModuleNotFoundError: No module named 'flask'",
			want: Descriptor{
				Kind:     strp("ModuleNotFoundError"),
				Tail:     "ModuleNotFoundError: No module named 'flask'",
				Category: CategoryImport,
			},
		},
		{
			name: "free text tail is the kind",
			in:   "something went wrong\n\n",
			want: Descriptor{
				Kind:     strp("something went wrong"),
				Tail:     "something went wrong",
				Category: CategoryUnknown,
			},
		},
		{
			name: "colon after non-identifier",
			in:   "Error generating code: quota exceeded",
			want: Descriptor{
				Kind:     strp("Error generating code: quota exceeded"),
				Tail:     "Error generating code: quota exceeded",
				Category: CategoryUnknown,
			},
		},
		{
			name: "frame without category line",
			in:   "  File \"a.py\", line 2, in f\n    oops\nplain tail",
			want: Descriptor{
				Kind:     strp("plain tail"),
				Tail:     "plain tail",
				Category: CategoryUnknown,
			},
		},
		{
			name: "empty",
			in:   "  \n\t\n",
			want: Descriptor{Category: CategoryUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassify_ChainedUsesLastLine(t *testing.T) {
	in := nameTrace + "\nDuring handling of the above exception, another exception occurred:\n\n" +
		"Traceback (most recent call last):\n  File \"b.py\", line 11, in g\n    int('a')\nValueError: invalid literal for int() with base 10: 'a'\n"

	got := Classify(in)
	if got.KindOr("") != "ValueError" {
		t.Fatalf("expected last line to decide kind, got %q", got.KindOr(""))
	}
	if got.Location == nil || *got.Location != 11 {
		t.Fatalf("expected last frame location 11, got %v", got.Location)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for _, in := range []string{syntaxTrace, nameTrace, assertionTrace, "", "x"} {
		first := Classify(in)
		for i := 0; i < 3; i++ {
			if diff := cmp.Diff(first, Classify(in)); diff != "" {
				t.Fatalf("Classify not deterministic for %q:\n%s", in, diff)
			}
		}
	}
}

func TestDescriptorAccessors(t *testing.T) {
	var d Descriptor
	if d.KindOr("none") != "none" || d.MessageOr("none") != "none" {
		t.Fatal("nil fields must fall back")
	}
	d = Classify(nameTrace)
	if d.KindOr("") != "NameError" || d.MessageOr("") != "NameError: name 'x' is not defined" {
		t.Fatalf("unexpected accessors: %+v", d)
	}
}

package metadata

import (
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Path
		wantErr bool
	}{
		{"root", "/", "/", false},
		{"simple", "/a", "/a", false},
		{"nested", "/a/b/c", "/a/b/c", false},
		{"trailing slash normalized", "/a/b/", "/a/b", false},
		{"multiple trailing slashes", "/a//", "/a", false},
		{"all slashes is root", "///", "/", false},
		{"spaces allowed", "/my docs/file.txt", "/my docs/file.txt", false},
		{"empty", "", "", true},
		{"relative", "a/b", "", true},
		{"dotdot traversal", "/../etc/passwd", "", true},
		{"dotdot embedded", "/a/..b", "", true},
		{"nul byte", "/a\x00b", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePath(%q) = %q, want error", tt.input, got)
				}
				if !IsInvalidPath(err) {
					t.Errorf("ParsePath(%q) error = %v, want InvalidPath", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParsePath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPathParent(t *testing.T) {
	tests := []struct {
		path Path
		want Path
	}{
		{"/a/b/c", "/a/b"},
		{"/a/b", "/a"},
		{"/x", "/"},
	}

	for _, tt := range tests {
		if got := tt.path.Parent(); got != tt.want {
			t.Errorf("Parent(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPathParentOfRootPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Parent(\"/\") did not panic")
		}
	}()
	_ = RootPath.Parent()
}

func TestPathBase(t *testing.T) {
	tests := []struct {
		path Path
		want string
	}{
		{"/", "/"},
		{"/a", "a"},
		{"/a/b/c.txt", "c.txt"},
	}

	for _, tt := range tests {
		if got := tt.path.Base(); got != tt.want {
			t.Errorf("Base(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPathDepth(t *testing.T) {
	tests := []struct {
		path Path
		want int
	}{
		{"/", 0},
		{"/a", 1},
		{"/a/b", 2},
		{"/a/b/c", 3},
	}

	for _, tt := range tests {
		if got := tt.path.Depth(); got != tt.want {
			t.Errorf("Depth(%q) = %d, want %d", tt.path, got, tt.want)
		}
	}
}

func TestPathIsChildOf(t *testing.T) {
	tests := []struct {
		path Path
		dir  Path
		want bool
	}{
		{"/a", "/", true},
		{"/a/b", "/a", true},
		{"/a/b/c", "/a", false},
		{"/", "/", false},
		{"/ab", "/a", false},
	}

	for _, tt := range tests {
		if got := tt.path.IsChildOf(tt.dir); got != tt.want {
			t.Errorf("IsChildOf(%q, %q) = %t, want %t", tt.path, tt.dir, got, tt.want)
		}
	}
}

func TestPathIsDescendantOf(t *testing.T) {
	tests := []struct {
		path Path
		dir  Path
		want bool
	}{
		{"/a", "/", true},
		{"/a/b/c", "/a", true},
		{"/a", "/a", false},
		{"/ab", "/a", false},
		{"/", "/", false},
	}

	for _, tt := range tests {
		if got := tt.path.IsDescendantOf(tt.dir); got != tt.want {
			t.Errorf("IsDescendantOf(%q, %q) = %t, want %t", tt.path, tt.dir, got, tt.want)
		}
	}
}

func TestPathJoin(t *testing.T) {
	if got := RootPath.Join("a"); got != "/a" {
		t.Errorf("Join(/, a) = %q, want /a", got)
	}
	if got := Path("/a/b").Join("c"); got != "/a/b/c" {
		t.Errorf("Join(/a/b, c) = %q, want /a/b/c", got)
	}
}

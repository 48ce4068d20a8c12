package storage

import (
	"strings"
	"testing"
)

func TestGeneratedKeysAreValid(t *testing.T) {
	photo := PhotoKey(42, ".png")
	if !strings.HasPrefix(photo, "user-assets/42/") || !ValidUserAssetKey(42, photo) {
		t.Fatalf("photo key %q should be valid for its owner", photo)
	}
	if ValidUserAssetKey(43, photo) {
		t.Fatalf("photo key %q must not be valid for another owner", photo)
	}

	ref := ReferenceImageKey(42, ".jpg")
	if !ValidReferenceImageKey(42, ref) || ValidUserAssetKey(42, ref) {
		t.Fatalf("reference key %q validated against the wrong prefix", ref)
	}

	export := ExportKey(42, "abc")
	if export != "exports/42/abc.pdf" || !ValidExportKey(42, export) {
		t.Fatalf("unexpected export key %q", export)
	}
}

func TestValidUserAssetKeyRejects(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"traversal":    "user-assets/1/../2/a.png",
		"backslash":    `user-assets/1\a.png`,
		"double slash": "user-assets/1//a.png",
		"prefix only":  "user-assets/10/a.png",
		"extension":    "user-assets/1/a.svg",
		"no extension": "user-assets/1/a",
		"too long":     "user-assets/1/" + strings.Repeat("a", 200) + ".png",
		"invalid utf8": "user-assets/1/\xff.png",
	}
	for name, key := range cases {
		if ValidUserAssetKey(1, key) {
			t.Errorf("%s: %q should be rejected", name, key)
		}
	}
	if !ValidUserAssetKey(1, "user-assets/1/Photo.JPEG") {
		t.Errorf("upper-case extension should be accepted")
	}
}

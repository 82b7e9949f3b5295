package cli

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/mark3labs/oasgen/internal/manifest"
)

func TestUsageErrorHintAndCause(t *testing.T) {
	t.Parallel()
	err := usageErrorf("check permissions.", "output error for %s: %w", "out", fs.ErrPermission)

	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("cause lost: %v", err)
	}
	want := "output error for out: permission denied\nHint: check permissions."
	if err.Error() != want {
		t.Fatalf("message mismatch:\nwant %q\ngot  %q", want, err.Error())
	}
	if got := newUsageError("plain").Error(); got != "plain" {
		t.Fatalf("plain message mismatch: %q", got)
	}
}

func TestManifestUsageError(t *testing.T) {
	t.Parallel()
	src := &manifest.ManifestError{
		Code:        manifest.ValidationError,
		Message:     `unknown serializer "Parrot"`,
		Location:    "api.yaml",
		JSONPointer: "#/endpoints/2/response",
	}
	err := manifestUsageError(src)
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	var me *manifest.ManifestError
	if !errors.As(err, &me) || me.Code != manifest.ValidationError {
		t.Fatalf("manifest error not reachable: %v", err)
	}
	want := "manifest: unknown serializer \"Parrot\"\nLocation: api.yaml\nPointer: #/endpoints/2/response"
	if err.Error() != want {
		t.Fatalf("message mismatch:\nwant %q\ngot  %q", want, err.Error())
	}

	other := errors.New("boom")
	if got := manifestUsageError(other); got != other || errors.Is(got, ErrUsage) {
		t.Fatalf("non-manifest errors must pass through, got %v", got)
	}
}

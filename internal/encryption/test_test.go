package encryption_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"minix/internal/encryption"
	"minix/internal/objectstore"
)

func TestTestEncryptor_SealsPastesInStore(t *testing.T) {
	ctx := context.Background()
	inner := objectstore.NewMemoryStore("inner")
	enc := encryption.NewTestEncryptor()
	store := objectstore.NewEncryptedStore(inner, enc)

	tests := []struct {
		name    string
		path    string
		content string
	}{
		{name: "short paste", path: "pastes/id-1.txt", content: "fmt.Println(\"hi\")\n"},
		{name: "large paste", path: "pastes/id-2.txt", content: strings.Repeat("log line 0123456789\n", 20000)},
		{name: "binary file", path: "files/id-3-logo.png", content: "\x89PNG\r\n\x1a\n\x00\x00"},
	}

	dec, err := enc.Unlock("any-passphrase")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	store.Unlock(dec)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := int64(len(tt.content))
			if err := store.Put(ctx, tt.path, strings.NewReader(tt.content), size, "text/plain"); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			sealed, _, ok := inner.Content(tt.path)
			if !ok {
				t.Fatalf("inner store has no blob at %s", tt.path)
			}
			if !bytes.HasPrefix(sealed, []byte("MXENC")) {
				t.Errorf("sealed blob starts with %q, want the test header", sealed[:min(len(sealed), 8)])
			}
			if int64(len(sealed)) != size+8 {
				t.Errorf("sealed size = %d, want %d", len(sealed), size+8)
			}

			var buf bytes.Buffer
			if err := store.Download(ctx, tt.path, &buf); err != nil {
				t.Fatalf("Download() error = %v", err)
			}
			if buf.String() != tt.content {
				t.Errorf("Download() returned %d bytes, want the %d stored", buf.Len(), len(tt.content))
			}
		})
	}
}

func TestTestEncryptor_RejectsUnsealedBlobs(t *testing.T) {
	ctx := context.Background()
	inner := objectstore.NewMemoryStore("inner")
	enc := encryption.NewTestEncryptor()
	store := objectstore.NewEncryptedStore(inner, enc)
	dec, err := enc.Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	store.Unlock(dec)

	// Blobs written before encryption was turned on.
	tests := []struct {
		name    string
		content string
	}{
		{name: "plaintext paste", content: "written before encryption was enabled"},
		{name: "truncated header", content: "MX"},
		{name: "empty blob", content: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "pastes/" + strings.ReplaceAll(tt.name, " ", "-") + ".txt"
			if err := inner.Put(ctx, path, strings.NewReader(tt.content), int64(len(tt.content)), "text/plain"); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			var buf bytes.Buffer
			if err := store.Download(ctx, path, &buf); err == nil {
				t.Error("Download() of an unsealed blob should fail")
			}
		})
	}
}

func TestTestEncryptor_AlwaysConfigured(t *testing.T) {
	e := encryption.NewTestEncryptor()
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false, want true")
	}
	if err := e.Setup("passphrase"); err != nil {
		t.Errorf("Setup() error = %v", err)
	}
	if err := e.Setup("passphrase"); err != nil {
		t.Errorf("second Setup() error = %v, want nil for the test type", err)
	}
}

package ipfs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"benchd/internal/services"
	"benchd/internal/services/ipfs"
)

func TestPublishReturnsCID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/publish-to-ipfs/upload-file" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file_data")
		if err != nil {
			t.Fatalf("missing file_data part: %v", err)
		}
		defer file.Close()
		if header.Filename != "passport.yaml" {
			t.Fatalf("unexpected filename: %s", header.Filename)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":    200,
			"ipfs_cid":  "QmDemo",
			"ipfs_link": "https://gateway/ipfs/QmDemo",
		})
	}))
	defer server.Close()

	client := ipfs.NewClientWithDoer(server.URL, server.Client())
	result, err := client.Publish(context.Background(), "passport.yaml", []byte("payload"))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if result.CID != "QmDemo" {
		t.Fatalf("unexpected CID: %q", result.CID)
	}
	if result.URL == "" {
		t.Fatal("expected gateway URL in result")
	}
}

func TestPublishClassifiesGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pinning failed", http.StatusBadGateway)
	}))
	defer server.Close()

	client := ipfs.NewClientWithDoer(server.URL, server.Client())
	_, err := client.Publish(context.Background(), "passport.yaml", []byte("payload"))
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}

func TestPublishRequiresConfiguredGateway(t *testing.T) {
	client := ipfs.NewClientWithDoer("", http.DefaultClient)
	_, err := client.Publish(context.Background(), "passport.yaml", nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

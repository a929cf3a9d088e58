// Package content uploads event metadata to an IPFS HTTP API and returns the
// gateway URL it can be fetched from.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"attendify/internal/apperr"
	"attendify/internal/logger"
)

type Store interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// Metadata is the document stored for every minted event.
type Metadata struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Location       string `json:"location"`
	Image          string `json:"image"`
	CollectionSize int    `json:"collectionSize"`
	Date           string `json:"date"`
}

type IPFSStore struct {
	apiURL        string
	gatewayURL    string
	projectID     string
	projectSecret string
	client        *http.Client
	logger        *logger.Logger
}

func NewIPFSStore(apiURL, gatewayURL, projectID, projectSecret string, log *logger.Logger) *IPFSStore {
	return &IPFSStore{
		apiURL:        strings.TrimRight(apiURL, "/"),
		gatewayURL:    strings.TrimRight(gatewayURL, "/"),
		projectID:     projectID,
		projectSecret: projectSecret,
		client:        &http.Client{Timeout: 30 * time.Second},
		logger:        log,
	}
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Upload adds data to IPFS and returns its gateway URL.
func (s *IPFSStore) Upload(ctx context.Context, name string, data []byte) (string, error) {
	const op = "ipfs upload"

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", apperr.ContentStore(op, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", apperr.ContentStore(op, err)
	}
	if err := w.Close(); err != nil {
		return "", apperr.ContentStore(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/add?pin=true", &body)
	if err != nil {
		return "", apperr.ContentStore(op, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if s.projectID != "" {
		req.SetBasicAuth(s.projectID, s.projectSecret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("IPFS", fmt.Sprintf("Failed to upload %s: %v", name, err))
		return "", apperr.ContentStore(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.ContentStore(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Error("IPFS", fmt.Sprintf("Upload of %s failed with status: %s", name, resp.Status))
		return "", apperr.ContentStore(op, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(respBody))))
	}

	var added addResponse
	if err := json.Unmarshal(respBody, &added); err != nil {
		return "", apperr.ContentStore(op, fmt.Errorf("decode add response: %w", err))
	}
	if added.Hash == "" {
		return "", apperr.ContentStore(op, fmt.Errorf("add response carries no hash"))
	}

	url := s.gatewayURL + "/" + added.Hash
	s.logger.Info("IPFS", fmt.Sprintf("Uploaded %s (%s bytes) to %s", name, added.Size, url))
	return url, nil
}

// UploadMetadata stores meta as JSON and returns its URL.
func UploadMetadata(ctx context.Context, store Store, meta Metadata) (string, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return "", apperr.ContentStore("ipfs upload", err)
	}
	url, err := store.Upload(ctx, "metadata.json", data)
	if err != nil {
		var tagged *apperr.Error
		if !errors.As(err, &tagged) {
			err = apperr.ContentStore("ipfs upload", err)
		}
		return "", err
	}
	return url, nil
}

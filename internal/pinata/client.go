// Package pinata implements the content-store contract against a
// Pinata-compatible pinning provider: pin a local file to obtain a content
// id, unpin a content id, and fetch content bytes back from the gateway.
//
// Every failure the provider or the network can produce is wrapped in
// ErrProvider so the job queue can treat it as retriable.
package pinata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrProvider marks transient provider/transport failures. Callers match it
// with errors.Is and hand the job back to the queue for retry.
var ErrProvider = errors.New("pin provider error")

// ProviderName identifies the provider in pin records.
const ProviderName = "pinata"

// Store is the contract the pipeline expects from a content-addressed
// store. The workers depend on this interface, never on Client directly.
type Store interface {
	// Pin uploads the local file and returns its content id.
	Pin(ctx context.Context, localPath string) (string, error)

	// Unpin releases the retention for cid. Unpinning an id the provider
	// no longer holds is a no-op on the provider side.
	Unpin(ctx context.Context, cid string) error

	// FetchStream returns the content bytes for cid. The caller owns the
	// returned ReadCloser.
	FetchStream(ctx context.Context, cid string) (io.ReadCloser, FetchInfo, error)
}

// FetchInfo carries the optional metadata the gateway reports alongside a
// fetched stream. Zero values mean "unknown".
type FetchInfo struct {
	Size        int64
	ContentType string
	Filename    string
}

// Client talks to the provider's pinning API and public gateway.
type Client struct {
	baseURL    string
	gatewayURL string
	token      string
	httpClient *http.Client
}

// NewClient builds a Client. baseURL is the pinning API root
// (e.g. "https://api.pinata.cloud/pinning"), gatewayURL the content gateway
// root (e.g. "https://gateway.pinata.cloud/ipfs"). The HTTP client timeout
// bounds worst-case job duration on hung provider calls.
func NewClient(baseURL, gatewayURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		gatewayURL: gatewayURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Pin streams the local file to the provider as multipart form data and
// returns the content id the provider assigned. The multipart body is
// produced through a pipe so large files are never buffered in memory.
func (c *Client) Pin(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writePinBody(mw, f, filepath.Base(localPath))
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinFileToIPFS", pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: pin: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: pin: unexpected status %d: %s", ErrProvider, resp.StatusCode, body)
	}

	var pinned pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return "", fmt.Errorf("%w: pin: decode response: %v", ErrProvider, err)
	}
	if pinned.IpfsHash == "" {
		return "", fmt.Errorf("%w: pin: empty content id in response", ErrProvider)
	}

	return pinned.IpfsHash, nil
}

func writePinBody(mw *multipart.Writer, f *os.File, name string) error {
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}

	meta, _ := json.Marshal(map[string]string{"name": name})
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return err
	}

	opts, _ := json.Marshal(map[string]int{"cidVersion": 1})
	return mw.WriteField("pinataOptions", string(opts))
}

// Unpin asks the provider to release cid.
func (c *Client) Unpin(ctx context.Context, cid string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/unpin/"+cid, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: unpin %s: %v", ErrProvider, cid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: unpin %s: unexpected status %d: %s", ErrProvider, cid, resp.StatusCode, body)
	}

	return nil
}

// FetchStream downloads cid from the gateway. No auth is required on the
// gateway; it serves the raw content bytes.
func (c *Client) FetchStream(ctx context.Context, cid string) (io.ReadCloser, FetchInfo, error) {
	if cid == "" {
		return nil, FetchInfo{}, fmt.Errorf("content id required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gatewayURL+"/"+cid, nil)
	if err != nil {
		return nil, FetchInfo{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, FetchInfo{}, fmt.Errorf("%w: fetch %s: %v", ErrProvider, cid, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, FetchInfo{}, fmt.Errorf("%w: fetch %s: unexpected status %d", ErrProvider, cid, resp.StatusCode)
	}

	info := FetchInfo{ContentType: resp.Header.Get("Content-Type")}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			info.Size = n
		}
	}

	return resp.Body, info, nil
}

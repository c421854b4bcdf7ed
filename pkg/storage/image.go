package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// UploadImage pushes PNG bytes to the chat platform's image endpoint and
// returns the image key referenced later by notification cards. Reuses the
// bitable token lifecycle, both APIs sit behind the same tenant token.
func (b *Bitable) UploadImage(ctx context.Context, name string, data []byte) (string, error) {
	token, err := b.ensureToken(ctx)
	if err != nil {
		return "", err
	}

	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			ImageKey string `json:"image_key"`
		} `json:"data"`
	}

	err = b.doRetried(ctx, func() error {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		if werr := writer.WriteField("image_type", "message"); werr != nil {
			return fmt.Errorf("write image_type: %w", werr)
		}
		part, werr := writer.CreateFormFile("image", name)
		if werr != nil {
			return fmt.Errorf("create image form: %w", werr)
		}
		if _, werr := part.Write(data); werr != nil {
			return fmt.Errorf("write image: %w", werr)
		}
		if werr := writer.Close(); werr != nil {
			return fmt.Errorf("close image form: %w", werr)
		}

		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(b.cfg.BaseURL, "/")+"/im/v1/images", &buf)
		if rerr != nil {
			return fmt.Errorf("create upload request: %w", rerr)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)

		httpResp, derr := b.client.Do(req)
		if derr != nil {
			return fmt.Errorf("upload image: %w", derr)
		}
		defer httpResp.Body.Close()

		body, berr := io.ReadAll(httpResp.Body)
		if berr != nil {
			return fmt.Errorf("read upload response: %w", berr)
		}
		if httpResp.StatusCode != http.StatusOK {
			return fmt.Errorf("upload image: status %d", httpResp.StatusCode)
		}
		if jerr := json.Unmarshal(body, &resp); jerr != nil {
			return fmt.Errorf("decode upload response: %w", jerr)
		}
		if resp.Code != 0 {
			if isStaleTokenCode(resp.Code) {
				b.invalidateToken()
				fresh, terr := b.ensureToken(ctx)
				if terr != nil {
					return terr
				}
				token = fresh
				return fmt.Errorf("stale access token code=%d msg=%s", resp.Code, resp.Msg)
			}
			return fmt.Errorf("upload image: code=%d msg=%s", resp.Code, resp.Msg)
		}
		return nil
	})
	if err != nil {
		return "", &APIError{Op: "image upload", Err: err}
	}
	return resp.Data.ImageKey, nil
}

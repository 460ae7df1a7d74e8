package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/keyquest/wa-gateway/internal/apperr"
)

const maxUploadBytes = 5 << 20 // 5MB (spec §6.3)

// imageKitUploadURL is ImageKit's REST upload endpoint. No Go SDK for
// ImageKit appears anywhere in the reference corpus, so this talks to
// the REST API directly over net/http; see DESIGN.md for the
// stdlib-only justification.
const imageKitUploadURL = "https://upload.imagekit.io/api/v1/files/upload"

type uploadResponse struct {
	FileID   string `json:"fileId"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Height   int    `json:"height"`
	Width    int    `json:"width"`
	ThumbURL string `json:"thumbnailUrl"`
}

// handleUploadImage proxies a single image to ImageKit and returns its
// CDN URL (spec §6.3 "POST /api/upload/image"). The endpoint is gated
// on ImageKit being configured; otherwise it reports 503 rather than
// attempting an upload that can never succeed.
func (s *Server) handleUploadImage(c *gin.Context) {
	if !s.cfg.ImageKit.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "image upload is not configured"})
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "image file is required")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		fail(c, apperr.Validation{Msg: "image exceeds 5MB limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		fail(c, apperr.Validation{Msg: "could not open uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		fail(c, apperr.Validation{Msg: "could not read uploaded file"})
		return
	}
	if len(data) > maxUploadBytes {
		fail(c, apperr.Validation{Msg: "image exceeds 5MB limit"})
		return
	}

	mtype := mimetype.Detect(data)
	if mtype == nil || !isImageMIME(mtype.String()) {
		fail(c, apperr.Validation{Msg: "uploaded file is not an image"})
		return
	}

	resp, err := s.uploadToImageKit(c, data, fileHeader.Filename)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"url":      resp.URL,
		"fileId":   resp.FileID,
		"name":     resp.Name,
		"size":     resp.Size,
		"width":    resp.Width,
		"height":   resp.Height,
		"thumbUrl": resp.ThumbURL,
	})
}

func isImageMIME(mime string) bool {
	return len(mime) >= 6 && mime[:6] == "image/"
}

func (s *Server) uploadToImageKit(c *gin.Context, data []byte, filename string) (*uploadResponse, error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, apperr.TransientClient{Cause: err}
	}
	if _, err := part.Write(data); err != nil {
		return nil, apperr.TransientClient{Cause: err}
	}
	if err := mw.WriteField("fileName", filename); err != nil {
		return nil, apperr.TransientClient{Cause: err}
	}
	if err := mw.WriteField("useUniqueFileName", "true"); err != nil {
		return nil, apperr.TransientClient{Cause: err}
	}
	if err := mw.Close(); err != nil {
		return nil, apperr.TransientClient{Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, imageKitUploadURL, &body)
	if err != nil {
		return nil, apperr.TransientClient{Cause: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(s.cfg.ImageKit.PrivateKey, "")

	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, apperr.TransientClient{Cause: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperr.TransientClient{Cause: err}
	}
	if httpResp.StatusCode >= 300 {
		return nil, apperr.TerminalClient{Cause: fmt.Errorf("imagekit upload failed: %s: %s", httpResp.Status, respBody)}
	}

	var out uploadResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, apperr.TransientClient{Cause: err}
	}
	return &out, nil
}

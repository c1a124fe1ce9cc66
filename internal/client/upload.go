package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
)

type ProgressFunc func(percent int)

// progressReader reports the share of body bytes handed to the transport,
// rounded to whole percents. Repeated values are suppressed.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	last       int
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 && p.onProgress != nil {
		p.read += int64(n)
		percent := int(math.Round(float64(p.read) / float64(p.total) * 100))
		if percent > 100 {
			percent = 100
		}
		if percent != p.last {
			p.last = percent
			p.onProgress(percent)
		}
	}
	return n, err
}

type formField struct {
	name  string
	value string
}

// buildMultipart buffers the form so the request carries a Content-Length
// and upload progress has a known total.
func buildMultipart(fileName string, content io.Reader, fields ...formField) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", fileName, err)
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

func (c *Client) postMultipart(ctx context.Context, rawURL, op, fileName string, content io.Reader, onProgress ProgressFunc, out any, fields ...formField) error {
	buf, contentType, err := buildMultipart(fileName, content, fields...)
	if err != nil {
		return err
	}

	body := &progressReader{r: buf, total: int64(buf.Len()), last: -1, onProgress: onProgress}
	req, err := c.newRequest(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return err
	}
	req.ContentLength = int64(buf.Len())
	req.Header.Set("Content-Type", contentType)

	resp, err := c.send(req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}
